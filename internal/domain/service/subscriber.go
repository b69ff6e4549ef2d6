package service

import (
	"context"

	"beacon/internal/domain/event"
)

// EventSubscriber consumes the bus channels published by the external API
// servers and exposes them as one ordered stream of typed events.
//
// The stream is lazy, unbounded and non-restartable: Run owns the transport,
// reconnects with backoff on failure, and closes Events when it returns.
// Events published while the transport is down are lost; that gap is an
// accepted property of the bus, not something Run papers over.
type EventSubscriber interface {
	// Events returns the stream consumed by the dispatcher loop.
	Events() <-chan event.Event

	// Run blocks, feeding Events until ctx is cancelled or the transport
	// fails beyond recovery.
	Run(ctx context.Context) error
}
