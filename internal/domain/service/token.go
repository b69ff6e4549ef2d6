package service

import (
	"context"

	"github.com/pkg/errors"
)

// ErrTokenRefreshFailed is returned (wrapped) to every caller waiting on a
// failed OAuth refresh.
var ErrTokenRefreshFailed = errors.New("oauth token refresh failed")

// TokenSource hands out a currently valid bearer token for the push
// provider, refreshing it before expiry. Safe for arbitrary concurrent
// callers; at most one refresh is in flight at a time.
type TokenSource interface {
	// Token returns a bearer token valid for at least the safety margin.
	// Concurrent callers observing an absent or expiring lease share a
	// single refresh and its outcome.
	Token(ctx context.Context) (string, error)

	// Invalidate drops the cached lease so the next Token call refreshes.
	// Used after the provider rejects the token as expired.
	Invalidate()
}
