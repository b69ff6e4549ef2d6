package usecase

import (
	"context"
)

// ReminderScheduler periodically turns due habit/challenge participations
// into notifications on the regular dispatch path.
type ReminderScheduler interface {
	// Run ticks at the configured interval until ctx is cancelled. Ticks do
	// not overlap; a failed due-query skips the tick and is retried on the
	// next one.
	Run(ctx context.Context) error
}
