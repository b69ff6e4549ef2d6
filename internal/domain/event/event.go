// Package event defines the typed events carried on the bus between the
// external API servers and this dispatch service. Channel names are part of
// the contract with the publishers and must not change.
package event

import (
	"github.com/google/uuid"
)

// Bus channel names.
const (
	ChannelNotification = "notification"
	ChannelUserUpdated  = "user_updated"
	ChannelUserRemoved  = "user_removed"
	ChannelTokenUpdated = "user_token_updated"
	ChannelTokenRemoved = "user_token_removed"
)

// Channels returns every channel the subscriber listens on.
func Channels() []string {
	return []string{
		ChannelNotification,
		ChannelUserUpdated,
		ChannelUserRemoved,
		ChannelTokenUpdated,
		ChannelTokenRemoved,
	}
}

// Event is a single decoded bus message. Concrete types below carry the
// per-channel payloads.
type Event interface {
	// Channel returns the bus channel the event arrived on.
	Channel() string
}

// Notification asks the dispatcher to deliver a message to one user.
type Notification struct {
	Recipient uuid.UUID `json:"recipient"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body,omitempty"`
	URL       string    `json:"url,omitempty"`
	Payload   string    `json:"payload,omitempty"`
}

func (Notification) Channel() string { return ChannelNotification }

// UserUpdated signals that a user's profile changed upstream.
type UserUpdated struct {
	UserID uuid.UUID `json:"user_id"`
}

func (UserUpdated) Channel() string { return ChannelUserUpdated }

// UserRemoved signals that a user no longer exists; all of their live
// sessions must be force-disconnected.
type UserRemoved struct {
	UserID uuid.UUID `json:"user_id"`
}

func (UserRemoved) Channel() string { return ChannelUserRemoved }

// TokenUpdated signals that a device push token was registered or rotated.
type TokenUpdated struct {
	UserID uuid.UUID `json:"user_id"`
	Token  string    `json:"token"`
}

func (TokenUpdated) Channel() string { return ChannelTokenUpdated }

// TokenRemoved signals that a device registration was revoked.
type TokenRemoved struct {
	UserID  uuid.UUID `json:"user_id"`
	TokenID uuid.UUID `json:"token_id"`
}

func (TokenRemoved) Channel() string { return ChannelTokenRemoved }
