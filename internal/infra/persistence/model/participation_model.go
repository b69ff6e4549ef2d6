package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ParticipationModel is the GORM-specific struct for the 'participations'
// table: one user's membership in a habit or challenge, including their
// reminder schedule. Rows are written by the external API; this service
// reads the schedule and stamps last_reminded_at.
type ParticipationModel struct {
	ID     uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v7()"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index"`

	ActivityName string `gorm:"type:varchar(255);not null"`

	// ReminderMinute is the reminder time of day in minutes since midnight
	// UTC; null disables the reminder.
	ReminderMinute *int16 `gorm:"type:smallint"`
	// ReminderDays is a weekday bitmask, Sunday = bit 0, matching
	// time.Weekday. Zero means every day.
	ReminderDays int16 `gorm:"type:smallint;not null;default:0"`

	// LastRemindedAt is the minute of the most recent reminder, the
	// de-duplication stamp for repeated ticks.
	LastRemindedAt *time.Time

	IsActive  bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName explicitly sets the table name for GORM.
func (ParticipationModel) TableName() string {
	return "participations"
}
