package entity

import (
	"github.com/google/uuid"
)

// ReminderCandidate is one row of the scheduler's due-participation query:
// a habit or challenge participation whose reminder fires at the current
// minute. Lifecycle is query, synthesize one notification, discard.
type ReminderCandidate struct {
	UserID          uuid.UUID // The participant to remind.
	ParticipationID uuid.UUID // The habit/challenge participation the reminder belongs to.
	ActivityName    string    // Display name of the habit or challenge.
	PushToken       string    // Push token of the participant's primary device; may be empty.
}
