// Package service defines the interfaces for external collaborators:
// the push provider, its OAuth token endpoint, the event bus, and the
// in-process session registry.
package service

import (
	"context"

	"beacon/internal/domain/entity"

	"github.com/pkg/errors"
)

// Push delivery error taxonomy. Callers classify with errors.Is; the
// concrete client wraps these with provider detail.
var (
	// ErrInvalidToken means the device token is malformed or unregistered;
	// the caller should deactivate the device registration.
	ErrInvalidToken = errors.New("push token invalid or unregistered")

	// ErrProviderUnavailable covers 5xx responses and transport failures.
	ErrProviderUnavailable = errors.New("push provider unavailable")

	// ErrAuthExpired means the bearer token was rejected; the client forces
	// one token refresh and retries once before surfacing it.
	ErrAuthExpired = errors.New("push authorization expired")

	// ErrPayloadRejected covers non-auth 4xx responses; not retryable.
	ErrPayloadRejected = errors.New("push payload rejected")
)

// PushSender delivers one notification to one device token.
type PushSender interface {
	Send(ctx context.Context, deviceToken string, notification *entity.Notification) error
}
