package service

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrInvalidAccessToken is returned when a WebSocket handshake credential
// fails validation; the handshake is rejected before the upgrade.
var ErrInvalidAccessToken = errors.New("invalid access token")

// AccessTokenValidator validates the access credential presented on the
// WebSocket handshake and resolves the user it belongs to.
type AccessTokenValidator interface {
	ValidateAccessToken(token string) (uuid.UUID, error)
}
