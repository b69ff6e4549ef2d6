package impl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"beacon/config"
	"beacon/internal/domain/entity"
	"beacon/internal/domain/repository"
	"beacon/internal/usecase"

	"github.com/pkg/errors"
)

const defaultSchedulerInterval = time.Minute

type reminderScheduler struct {
	reminderRepo repository.ReminderRepository
	dispatcher   usecase.NotificationDispatcher
	logger       *slog.Logger
	interval     time.Duration
	now          func() time.Time
}

// NewReminderScheduler creates a new reminder scheduler instance.
func NewReminderScheduler(
	reminderRepo repository.ReminderRepository,
	dispatcher usecase.NotificationDispatcher,
	cfg *config.SchedulerConfig,
	logger *slog.Logger,
) usecase.ReminderScheduler {
	interval := defaultSchedulerInterval
	if cfg != nil && cfg.Interval > 0 {
		interval = cfg.Interval
	}

	return &reminderScheduler{
		reminderRepo: reminderRepo,
		dispatcher:   dispatcher,
		logger:       logger,
		interval:     interval,
		now:          time.Now,
	}
}

// Run ticks at the configured interval until ctx is cancelled. The tick
// runs synchronously in the loop, so ticks never overlap.
func (s *reminderScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx, s.now())
		}
	}
}

// tick queries the participations due at the given minute and dispatches
// one reminder notification each. MarkReminded is stamped before dispatch;
// a reminder lost between stamp and delivery stays lost, matching the
// at-most-once-per-minute contract.
func (s *reminderScheduler) tick(ctx context.Context, now time.Time) {
	tick := now.UTC().Truncate(time.Minute)

	candidates, err := s.reminderRepo.FindDueParticipations(ctx, tick)
	if err != nil {
		s.logger.Warn("due-participation query failed, skipping tick",
			slog.Time("tick", tick),
			slog.Any("error", err),
		)

		return
	}

	for _, candidate := range candidates {
		if err := s.reminderRepo.MarkReminded(ctx, candidate.ParticipationID, tick); err != nil {
			if errors.Is(err, repository.ErrAlreadyReminded) {
				continue
			}
			s.logger.Warn("failed to stamp reminder, skipping candidate",
				slog.String("participation_id", candidate.ParticipationID.String()),
				slog.Any("error", err),
			)

			continue
		}

		if candidate.PushToken == "" {
			// Only reachable if the user happens to be online.
			s.logger.Debug("reminder candidate has no push token",
				slog.String("user_id", candidate.UserID.String()),
			)
		}

		notification := reminderNotification(candidate)
		if err := s.dispatcher.Dispatch(ctx, notification); err != nil {
			s.logger.Warn("reminder dispatch failed",
				slog.String("participation_id", candidate.ParticipationID.String()),
				slog.Any("error", err),
			)
		}
	}
}

func reminderNotification(candidate *entity.ReminderCandidate) *entity.Notification {
	return &entity.Notification{
		Recipient: candidate.UserID,
		Title:     candidate.ActivityName,
		Body:      fmt.Sprintf("Time to check in on %s", candidate.ActivityName),
		URL:       "/participations/" + candidate.ParticipationID.String(),
	}
}
