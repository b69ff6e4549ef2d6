package impl

import (
	"context"
	"encoding/json"
	"log/slog"

	"beacon/config"
	"beacon/internal/domain/entity"
	"beacon/internal/domain/event"
	"beacon/internal/domain/repository"
	"beacon/internal/domain/service"
	"beacon/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const defaultFanOutLimit = 16

type dispatcherService struct {
	registry    service.SessionRegistry
	deviceRepo  repository.DeviceRepository
	push        service.PushSender
	logger      *slog.Logger
	fanOutLimit int
}

// NewDispatcherService creates a new dispatcher instance.
func NewDispatcherService(
	registry service.SessionRegistry,
	deviceRepo repository.DeviceRepository,
	push service.PushSender,
	cfg *config.PushConfig,
	logger *slog.Logger,
) usecase.NotificationDispatcher {
	fanOutLimit := defaultFanOutLimit
	if cfg != nil && cfg.FanOutLimit > 0 {
		fanOutLimit = cfg.FanOutLimit
	}

	return &dispatcherService{
		registry:    registry,
		deviceRepo:  deviceRepo,
		push:        push,
		logger:      logger,
		fanOutLimit: fanOutLimit,
	}
}

// Run consumes bus events until the channel closes or ctx is cancelled.
func (s *dispatcherService) Run(ctx context.Context, events <-chan event.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}

			s.handle(ctx, ev)
		}
	}
}

// handle routes one bus event. Failures are logged, never fatal; the next
// event must still be consumed.
func (s *dispatcherService) handle(ctx context.Context, ev event.Event) {
	switch ev := ev.(type) {
	case event.Notification:
		notification := &entity.Notification{
			Recipient: ev.Recipient,
			Title:     ev.Title,
			Body:      ev.Body,
			URL:       ev.URL,
			Payload:   ev.Payload,
		}
		if err := s.Dispatch(ctx, notification); err != nil {
			s.logger.Warn("notification dispatch failed",
				slog.String("recipient", ev.Recipient.String()),
				slog.Any("error", err),
			)
		}

	case event.UserRemoved:
		evicted := s.registry.EvictUser(ev.UserID)
		s.logger.Info("evicted removed user",
			slog.String("user_id", ev.UserID.String()),
			slog.Int("sessions", evicted),
		)

	case event.TokenRemoved:
		if err := s.deviceRepo.DeactivateDevice(ctx, ev.TokenID); err != nil {
			if errors.Is(err, repository.ErrDeviceNotFound) {
				// Registration was already gone or inactive.
				return
			}
			s.logger.Warn("device deactivation failed",
				slog.String("device_id", ev.TokenID.String()),
				slog.Any("error", err),
			)
		}

	case event.TokenUpdated:
		// Registrations are written upstream; nothing to do here beyond
		// acknowledging the event.
		s.logger.Debug("push token rotated",
			slog.String("user_id", ev.UserID.String()),
		)

	case event.UserUpdated:
		s.logger.Debug("user profile updated",
			slog.String("user_id", ev.UserID.String()),
		)

	default:
		s.logger.Warn("unhandled bus event",
			slog.String("channel", ev.Channel()),
		)
	}
}

// Dispatch delivers one notification: live sessions first, push fallback
// only when no session accepted it.
func (s *dispatcherService) Dispatch(ctx context.Context, notification *entity.Notification) error {
	payload, err := socketPayload(notification)
	if err != nil {
		return errors.Wrap(err, "failed to encode notification")
	}

	if delivered := s.registry.SendToUser(notification.Recipient, payload); delivered > 0 {
		s.logger.Debug("delivered over socket",
			slog.String("recipient", notification.Recipient.String()),
			slog.Int("sessions", delivered),
		)

		return nil
	}

	return s.pushFanOut(ctx, notification)
}

// pushFanOut sends the notification to every pushable device of the
// recipient in parallel. One device failing must not starve the others, so
// worker errors are handled inline and never propagate through the group.
func (s *dispatcherService) pushFanOut(ctx context.Context, notification *entity.Notification) error {
	devices, err := s.deviceRepo.FindPushableDevicesByUser(ctx, notification.Recipient)
	if err != nil {
		return errors.Wrap(err, "failed to load pushable devices")
	}

	if len(devices) == 0 {
		s.logger.Debug("recipient unreachable, dropping notification",
			slog.String("recipient", notification.Recipient.String()),
		)

		return nil
	}

	var group errgroup.Group
	group.SetLimit(s.fanOutLimit)

	for _, device := range devices {
		group.Go(func() error {
			s.pushToDevice(ctx, device, notification)

			return nil
		})
	}

	_ = group.Wait()

	return nil
}

func (s *dispatcherService) pushToDevice(ctx context.Context, device *entity.UserDevice, notification *entity.Notification) {
	err := s.push.Send(ctx, device.PushToken, notification)
	if err == nil {
		return
	}

	if errors.Is(err, service.ErrInvalidToken) {
		s.deactivateStaleDevice(ctx, device.ID)

		return
	}

	s.logger.Warn("push delivery failed",
		slog.String("recipient", notification.Recipient.String()),
		slog.String("device_id", device.ID.String()),
		slog.String("platform", device.Platform),
		slog.Any("error", err),
	)
}

// deactivateStaleDevice cleans up a registration the provider reported as
// unregistered, so it is skipped on the next dispatch.
func (s *dispatcherService) deactivateStaleDevice(ctx context.Context, id uuid.UUID) {
	err := s.deviceRepo.DeactivateDevice(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrDeviceNotFound) {
		s.logger.Warn("stale device deactivation failed",
			slog.String("device_id", id.String()),
			slog.Any("error", err),
		)

		return
	}

	s.logger.Info("deactivated device with unregistered push token",
		slog.String("device_id", id.String()),
	)
}

// socketPayload is the JSON frame written to live sessions. The recipient
// is implicit in the connection, so it is not repeated on the wire.
func socketPayload(notification *entity.Notification) ([]byte, error) {
	frame := struct {
		Type    string `json:"type"`
		Title   string `json:"title,omitempty"`
		Body    string `json:"body,omitempty"`
		URL     string `json:"url,omitempty"`
		Payload string `json:"payload,omitempty"`
	}{
		Type:    "notification",
		Title:   notification.Title,
		Body:    notification.Body,
		URL:     notification.URL,
		Payload: notification.Payload,
	}

	return json.Marshal(frame)
}
