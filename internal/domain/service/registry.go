package service

import (
	"github.com/google/uuid"
)

// SessionRegistry is the dispatcher's view of the live WebSocket sessions.
// The registry owns the socket handles exclusively; callers only address
// users and get back delivery counts.
type SessionRegistry interface {
	// SendToUser writes the payload to every live session of the user and
	// returns how many sessions accepted it. A dead session never fails the
	// whole call; it is unregistered lazily. Zero means the user is offline.
	SendToUser(userID uuid.UUID, payload []byte) int

	// EvictUser force-disconnects every session of the user and returns how
	// many were closed.
	EvictUser(userID uuid.UUID) int
}
