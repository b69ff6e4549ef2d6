package repository

import (
	"context"
	"time"

	"beacon/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrAlreadyReminded is returned by MarkReminded when the participation was
// already stamped for the minute, typically by a concurrent worker.
var ErrAlreadyReminded = errors.New("participation already reminded for this minute")

// ReminderRepository is the read surface the reminder scheduler consumes:
// habit/challenge participations whose reminder is due at a given minute.
type ReminderRepository interface {
	// FindDueParticipations returns participations whose reminder time-of-day
	// and weekday repeat schedule match the given tick, excluding rows
	// already reminded for that minute. The tick must be truncated to a
	// minute boundary.
	FindDueParticipations(ctx context.Context, tick time.Time) ([]*entity.ReminderCandidate, error)

	// MarkReminded records that a reminder was generated for the
	// participation at the given minute, so a repeated tick for the same
	// minute produces nothing. The (participation, minute) pair is the
	// de-duplication key.
	MarkReminded(ctx context.Context, participationID uuid.UUID, tick time.Time) error
}
