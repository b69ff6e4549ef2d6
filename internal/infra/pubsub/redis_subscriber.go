package pubsub

import (
	"context"
	"log/slog"
	"time"

	"beacon/config"
	"beacon/internal/domain/event"
	"beacon/internal/domain/service"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// redisSubscriber consumes the bus channels over Redis Pub/Sub. Transport
// failures resubscribe with exponential backoff; messages published during
// the gap are lost, which the bus contract accepts.
type redisSubscriber struct {
	client     *redis.Client
	logger     *slog.Logger
	events     chan event.Event
	backoff    time.Duration
	maxBackoff time.Duration
}

func newRedisSubscriber(cfg *config.BusConfig, logger *slog.Logger) (*redisSubscriber, error) {
	if cfg.Redis == nil || cfg.Redis.Addr == "" {
		return nil, errors.New("redis address is required for the redis bus provider")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return &redisSubscriber{
		client:     client,
		logger:     logger,
		events:     make(chan event.Event),
		backoff:    cfg.ReconnectBackoff,
		maxBackoff: cfg.MaxReconnectBackoff,
	}, nil
}

var _ service.EventSubscriber = (*redisSubscriber)(nil)

func (s *redisSubscriber) Events() <-chan event.Event {
	return s.events
}

// Run blocks, pumping decoded events until ctx is cancelled. The event
// channel is closed on return so the dispatcher loop drains and stops.
func (s *redisSubscriber) Run(ctx context.Context) error {
	defer close(s.events)

	backoff := s.backoff
	for {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}

		s.logger.Warn("bus subscription lost, resubscribing",
			slog.Duration("backoff", backoff),
			slog.Any("error", err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, s.maxBackoff)
	}
}

// consume holds one subscription until it errors or ctx ends.
func (s *redisSubscriber) consume(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, event.Channels()...)
	defer sub.Close()

	// Fail fast when the initial SUBSCRIBE cannot be established.
	if _, err := sub.Receive(ctx); err != nil {
		return errors.WithStack(err)
	}

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		ev, err := decodeEvent(msg.Channel, []byte(msg.Payload))
		if err != nil {
			s.logger.Warn("dropping malformed bus payload",
				slog.String("channel", msg.Channel),
				slog.Any("error", err),
			)

			continue
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *redisSubscriber) close() error {
	return errors.WithStack(s.client.Close())
}
