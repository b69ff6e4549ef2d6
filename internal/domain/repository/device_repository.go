// Package repository defines the interfaces for the persistence layer.
package repository

import (
	"context"

	"beacon/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Domain-specific errors for device persistence.
var (
	// ErrDeviceNotFound is returned when a device registration is not found.
	ErrDeviceNotFound = errors.New("device not found")
)

// DeviceRepository defines the read/cleanup surface this service has over
// device registrations. Creation and token rotation happen in the external
// profile/auth flows.
type DeviceRepository interface {
	// FindPushableDevicesByUser retrieves all active devices for a user that
	// carry a non-empty push token.
	FindPushableDevicesByUser(ctx context.Context, userID uuid.UUID) ([]*entity.UserDevice, error)

	// DeactivateDevice marks a registration inactive so it is skipped by
	// future dispatches. Used when the provider reports the token as
	// unregistered, or when the bus announces a revoked registration.
	DeactivateDevice(ctx context.Context, id uuid.UUID) error
}
