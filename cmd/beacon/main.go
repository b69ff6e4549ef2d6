package main

import (
	"context"
	"log/slog"
	"os"

	"beacon/config"
	"beacon/internal/delivery"
	"beacon/internal/delivery/ws"
	"beacon/internal/domain/service"
	"beacon/internal/infra/auth"
	logs "beacon/internal/infra/log"
	"beacon/internal/infra/oauth"
	"beacon/internal/infra/persistence/postgres"
	"beacon/internal/infra/pubsub"
	"beacon/internal/infra/push"
	"beacon/internal/realtime"
	"beacon/internal/usecase"
	"beacon/internal/usecase/impl"

	"go.uber.org/fx"
)

type startServerParams struct {
	fx.In
	fx.Lifecycle
	fx.Shutdowner

	Deliveries []delivery.Delivery `group:"deliveries"`
}

type startEngineParams struct {
	fx.In
	fx.Lifecycle
	fx.Shutdowner

	Cfg        *config.Config
	Logger     *slog.Logger
	Registry   *realtime.Registry
	Subscriber service.EventSubscriber
	Dispatcher usecase.NotificationDispatcher
	Scheduler  usecase.ReminderScheduler
}

func main() {
	fx.New(
		injectInfra(),
		injectRepo(),
		injectService(),
		injectUsecase(),
		injectDelivery(),
		fx.Invoke(
			startServer,
			startEngine,
		),
	).Run()
}

func injectInfra() fx.Option {
	return fx.Provide(
		config.New,
		// Expose the push and scheduler sections for the services that
		// only need them
		func(cfg *config.Config) *config.PushConfig {
			if cfg == nil || cfg.Push == nil {
				return &config.PushConfig{}
			}

			return cfg.Push
		},
		func(cfg *config.Config) *config.SchedulerConfig {
			if cfg == nil || cfg.Scheduler == nil {
				return &config.SchedulerConfig{}
			}

			return cfg.Scheduler
		},
		logs.New,
		context.Background,
		postgres.New,
	)
}

func injectRepo() fx.Option {
	return fx.Options(
		fx.Provide(
			postgres.NewDeviceRepository,
			postgres.NewReminderRepository,
		),
	)
}

func injectService() fx.Option {
	return fx.Options(
		fx.Provide(
			auth.NewJWTService,
			oauth.NewManager,
			push.NewClient,
			pubsub.NewEventSubscriber,
			realtime.NewRegistry,
			func(registry *realtime.Registry) service.SessionRegistry {
				return registry
			},
		),
	)
}

func injectUsecase() fx.Option {
	return fx.Options(
		fx.Provide(
			impl.NewDispatcherService,
			impl.NewReminderScheduler,
		),
	)
}

func injectDelivery() fx.Option {
	return fx.Options(
		fx.Provide(
			ws.NewHandler,
			fx.Annotate(
				ws.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
	)
}

func startServer(ctx context.Context, params startServerParams) {
	for _, delivery := range params.Deliveries {
		go func() {
			if err := delivery.Serve(ctx); err != nil {
				slog.Error("Failed to start server", slog.Any("error", err))

				// Trigger graceful shutdown to execute all OnStop hooks
				if shutdownErr := params.Shutdown(); shutdownErr != nil {
					slog.Error("Failed to shutdown gracefully", slog.Any("error", shutdownErr))
					os.Exit(1)
				}
			}
		}()
	}
}

// startEngine runs the dispatch pipeline: the bus subscriber feeds the
// dispatcher, and the reminder scheduler feeds the same dispatch path.
func startEngine(params startEngineParams) {
	engineCtx, cancel := context.WithCancel(context.Background())

	params.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := params.Subscriber.Run(engineCtx); err != nil {
					params.Logger.Error("Bus subscriber stopped", slog.Any("error", err))

					if shutdownErr := params.Shutdown(); shutdownErr != nil {
						params.Logger.Error("Failed to shutdown gracefully", slog.Any("error", shutdownErr))
						os.Exit(1)
					}
				}
			}()

			go func() {
				if err := params.Dispatcher.Run(engineCtx, params.Subscriber.Events()); err != nil {
					params.Logger.Error("Dispatcher stopped", slog.Any("error", err))
				}
			}()

			if params.Cfg.Scheduler != nil && params.Cfg.Scheduler.Disabled {
				params.Logger.Info("Reminder scheduler disabled")

				return nil
			}

			go func() {
				if err := params.Scheduler.Run(engineCtx); err != nil {
					params.Logger.Error("Reminder scheduler stopped", slog.Any("error", err))
				}
			}()

			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			params.Registry.Close()

			return nil
		},
	})
}
