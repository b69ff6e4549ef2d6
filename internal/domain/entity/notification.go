package entity

import (
	"github.com/google/uuid"
)

// Notification is a transient, immutable message addressed to one user.
// It is built from an inbound bus event or synthesized by the reminder
// scheduler, dispatched exactly once, then discarded. Nothing in this
// service persists it.
type Notification struct {
	Recipient uuid.UUID `json:"recipient"`         // The user the notification is addressed to.
	Title     string    `json:"title,omitempty"`   // Optional display title.
	Body      string    `json:"body,omitempty"`    // Optional display body.
	URL       string    `json:"url,omitempty"`     // Optional deep link opened on tap.
	Payload   string    `json:"payload,omitempty"` // Opaque payload forwarded to the client untouched.
}
