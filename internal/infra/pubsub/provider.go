// Package pubsub subscribes to the domain event bus published by the
// external API servers.
package pubsub

import (
	"context"
	"log/slog"

	"beacon/config"
	"beacon/internal/domain/service"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// Bus provider names.
const (
	ProviderRedis  = "redis"
	ProviderGoogle = "google"
)

// SubscriberParams holds dependencies for the event subscriber, injected by Fx.
type SubscriberParams struct {
	fx.In

	Lc     fx.Lifecycle
	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

// NewEventSubscriber creates an EventSubscriber based on configuration.
func NewEventSubscriber(params SubscriberParams) (service.EventSubscriber, error) {
	cfg := params.Config.Bus
	logger := params.Logger

	var subscriber service.EventSubscriber
	var closeFn func() error

	switch cfg.Provider {
	case ProviderRedis:
		sub, err := newRedisSubscriber(cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Using Redis Pub/Sub bus subscriber",
			slog.String("addr", cfg.Redis.Addr),
		)
		subscriber, closeFn = sub, sub.close

	case ProviderGoogle:
		logger.Info("Using Google Pub/Sub bus subscriber",
			slog.String("project_id", cfg.ProjectID),
			slog.String("subscription_prefix", cfg.SubscriptionPrefix),
		)

		sub, err := newGoogleSubscriber(params.Ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		subscriber, closeFn = sub, sub.close

	default:
		return nil, errors.Errorf("unknown bus provider: %s", cfg.Provider)
	}

	params.Lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("Closing event subscriber")

			return closeFn()
		},
	})

	return subscriber, nil
}
