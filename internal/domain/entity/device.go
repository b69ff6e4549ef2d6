// Package entity contains the core business objects of the project.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// UserDevice represents a user's device registered for push notifications.
// Registrations are written by the external profile/auth flows; this service
// only reads them and deactivates registrations whose token turned out to be
// invalid at the provider.
type UserDevice struct {
	ID        uuid.UUID `json:"id"`         // The unique identifier for the device registration.
	UserID    uuid.UUID `json:"user_id"`    // The ID of the user who owns this device.
	DeviceID  string    `json:"device_id"`  // Unique device identifier from the client.
	PushToken string    `json:"push_token"` // Provider push token; empty means the device is push-unreachable.
	Platform  string    `json:"platform"`   // Device platform (ios, android, web).
	IsActive  bool      `json:"is_active"`  // Indicates if this device is active for notifications.
	CreatedAt time.Time `json:"created_at"` // Timestamp of when this device was registered.
	UpdatedAt time.Time `json:"updated_at"` // Timestamp of the last modification.
}
