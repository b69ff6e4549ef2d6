package postgres

import (
	"context"
	"time"

	"beacon/internal/domain/entity"
	"beacon/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// reminderRepository implements the repository.ReminderRepository interface.
type reminderRepository struct {
	db *gorm.DB
}

// NewReminderRepository is the constructor for reminderRepository.
func NewReminderRepository(db *gorm.DB) repository.ReminderRepository {
	return &reminderRepository{
		db: db,
	}
}

// FindDueParticipations returns participations whose reminder schedule
// matches the tick minute and that have not been reminded for it yet. The
// weekday bitmask uses Sunday = bit 0; zero matches every day. The push
// token, when present, is the newest active registration's.
func (repo *reminderRepository) FindDueParticipations(ctx context.Context, tick time.Time) ([]*entity.ReminderCandidate, error) {
	tick = tick.UTC().Truncate(time.Minute)
	minuteOfDay := tick.Hour()*60 + tick.Minute()
	weekdayBit := int16(1) << int16(tick.Weekday())

	var candidates []*entity.ReminderCandidate

	err := repo.db.WithContext(ctx).
		Table("participations AS p").
		Select(`p.user_id AS user_id,
			p.id AS participation_id,
			p.activity_name AS activity_name,
			COALESCE((
				SELECT d.push_token FROM user_devices d
				WHERE d.user_id = p.user_id
					AND d.is_active AND d.push_token <> ''
					AND d.deleted_at IS NULL
				ORDER BY d.created_at DESC
				LIMIT 1
			), '') AS push_token`).
		Where("p.deleted_at IS NULL AND p.is_active").
		Where("p.reminder_minute = ?", minuteOfDay).
		Where("p.reminder_days = 0 OR (p.reminder_days & ?) <> 0", weekdayBit).
		Where("p.last_reminded_at IS NULL OR p.last_reminded_at < ?", tick).
		Scan(&candidates).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find due participations")
	}

	return candidates, nil
}

// MarkReminded stamps the participation with the tick minute. The guard on
// last_reminded_at keeps the stamp monotonic under concurrent workers.
func (repo *reminderRepository) MarkReminded(ctx context.Context, participationID uuid.UUID, tick time.Time) error {
	tick = tick.UTC().Truncate(time.Minute)

	result := repo.db.WithContext(ctx).
		Table("participations").
		Where("id = ?", participationID).
		Where("last_reminded_at IS NULL OR last_reminded_at < ?", tick).
		Update("last_reminded_at", tick)

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark participation reminded")
	}

	if result.RowsAffected == 0 {
		return repository.ErrAlreadyReminded
	}

	return nil
}
