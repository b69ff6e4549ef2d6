// Package usecase defines the interfaces for the application's business logic.
package usecase

import (
	"context"

	"beacon/internal/domain/entity"
	"beacon/internal/domain/event"
)

// NotificationDispatcher routes notifications to their recipient: live
// WebSocket sessions first, push provider fallback when the user is offline.
type NotificationDispatcher interface {
	// Run consumes bus events until the channel closes or ctx is cancelled.
	// Event handling failures are logged and never stop the loop.
	Run(ctx context.Context, events <-chan event.Event) error

	// Dispatch delivers one notification. Socket delivery to at least one
	// live session suppresses the push fallback entirely. A recipient with
	// no session and no pushable device is unreachable, which is not an
	// error.
	Dispatch(ctx context.Context, notification *entity.Notification) error
}
