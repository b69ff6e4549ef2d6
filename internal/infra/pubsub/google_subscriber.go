package pubsub

import (
	"context"
	"log/slog"

	"beacon/config"
	"beacon/internal/domain/event"
	"beacon/internal/domain/service"

	"cloud.google.com/go/pubsub/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// googleSubscriber consumes the bus channels over Google Pub/Sub, one
// subscription per channel, named "<prefix>-<channel>". The client library
// owns reconnection; receive callbacks are funneled into the single event
// channel so the dispatcher still sees one stream.
type googleSubscriber struct {
	client *pubsub.Client
	cfg    *config.BusConfig
	logger *slog.Logger
	events chan event.Event
}

func newGoogleSubscriber(ctx context.Context, cfg *config.BusConfig, logger *slog.Logger) (*googleSubscriber, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("project ID is required for the google bus provider")
	}
	if cfg.SubscriptionPrefix == "" {
		return nil, errors.New("subscription prefix is required for the google bus provider")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &googleSubscriber{
		client: client,
		cfg:    cfg,
		logger: logger,
		events: make(chan event.Event),
	}, nil
}

var _ service.EventSubscriber = (*googleSubscriber)(nil)

func (s *googleSubscriber) Events() <-chan event.Event {
	return s.events
}

// Run blocks until ctx is cancelled or a subscription fails beyond the
// client library's own retries.
func (s *googleSubscriber) Run(ctx context.Context) error {
	defer close(s.events)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, channel := range event.Channels() {
		subscription := s.client.Subscriber(s.cfg.SubscriptionPrefix + "-" + channel)
		group.Go(func() error {
			err := subscription.Receive(groupCtx, func(_ context.Context, msg *pubsub.Message) {
				// Ack regardless: a payload this service cannot decode
				// today will not decode on redelivery either.
				defer msg.Ack()

				ev, decodeErr := decodeEvent(channel, msg.Data)
				if decodeErr != nil {
					s.logger.Warn("dropping malformed bus payload",
						slog.String("channel", channel),
						slog.Any("error", decodeErr),
					)

					return
				}

				select {
				case s.events <- ev:
				case <-groupCtx.Done():
				}
			})

			return errors.WithStack(err)
		})
	}

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

func (s *googleSubscriber) close() error {
	return errors.WithStack(s.client.Close())
}
