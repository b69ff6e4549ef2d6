package impl

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"beacon/config"
	"beacon/internal/domain/entity"
	"beacon/internal/domain/event"
	"beacon/internal/domain/repository"
	"beacon/internal/domain/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	mu        sync.Mutex
	delivered int
	sent      [][]byte
	evicted   []uuid.UUID
}

func (f *fakeRegistry) SendToUser(_ uuid.UUID, payload []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)

	return f.delivered
}

func (f *fakeRegistry) EvictUser(userID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, userID)

	return 1
}

type fakeDeviceRepo struct {
	mu          sync.Mutex
	devices     []*entity.UserDevice
	findErr     error
	deactivated []uuid.UUID
}

func (f *fakeDeviceRepo) FindPushableDevicesByUser(context.Context, uuid.UUID) ([]*entity.UserDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.devices, f.findErr
}

func (f *fakeDeviceRepo) DeactivateDevice(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, id)

	return nil
}

type fakePush struct {
	mu     sync.Mutex
	errors map[string]error
	tokens []string
}

func (f *fakePush) Send(_ context.Context, deviceToken string, _ *entity.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, deviceToken)

	return f.errors[deviceToken]
}

func (f *fakePush) sentTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.tokens...)
}

func pushableDevice(userID uuid.UUID, token string) *entity.UserDevice {
	return &entity.UserDevice{
		ID:        uuid.New(),
		UserID:    userID,
		DeviceID:  "device-" + token,
		PushToken: token,
		Platform:  "ios",
		IsActive:  true,
	}
}

func newTestDispatcher(registry *fakeRegistry, repo *fakeDeviceRepo, push *fakePush) *dispatcherService {
	dispatcher := NewDispatcherService(registry, repo, push,
		&config.PushConfig{FanOutLimit: 4}, slog.New(slog.DiscardHandler))

	return dispatcher.(*dispatcherService)
}

func TestDispatch_SocketDeliverySuppressesPush(t *testing.T) {
	userID := uuid.New()
	registry := &fakeRegistry{delivered: 2}
	repo := &fakeDeviceRepo{devices: []*entity.UserDevice{pushableDevice(userID, "t1")}}
	push := &fakePush{}

	dispatcher := newTestDispatcher(registry, repo, push)

	err := dispatcher.Dispatch(context.Background(), &entity.Notification{Recipient: userID, Body: "hi"})
	require.NoError(t, err)
	assert.Empty(t, push.sentTokens())
}

func TestDispatch_OfflineFansOutToAllDevices(t *testing.T) {
	userID := uuid.New()
	registry := &fakeRegistry{delivered: 0}
	repo := &fakeDeviceRepo{devices: []*entity.UserDevice{
		pushableDevice(userID, "t1"),
		pushableDevice(userID, "t2"),
		pushableDevice(userID, "t3"),
	}}
	push := &fakePush{}

	dispatcher := newTestDispatcher(registry, repo, push)

	err := dispatcher.Dispatch(context.Background(), &entity.Notification{Recipient: userID, Body: "hi"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, push.sentTokens())
}

func TestDispatch_OneDeviceFailureDoesNotBlockOthers(t *testing.T) {
	userID := uuid.New()
	registry := &fakeRegistry{}
	repo := &fakeDeviceRepo{devices: []*entity.UserDevice{
		pushableDevice(userID, "ok-1"),
		pushableDevice(userID, "down"),
		pushableDevice(userID, "ok-2"),
	}}
	push := &fakePush{errors: map[string]error{"down": service.ErrProviderUnavailable}}

	dispatcher := newTestDispatcher(registry, repo, push)

	err := dispatcher.Dispatch(context.Background(), &entity.Notification{Recipient: userID, Body: "hi"})
	require.NoError(t, err)
	assert.Len(t, push.sentTokens(), 3)
}

func TestDispatch_InvalidTokenDeactivatesDevice(t *testing.T) {
	userID := uuid.New()
	stale := pushableDevice(userID, "stale")
	registry := &fakeRegistry{}
	repo := &fakeDeviceRepo{devices: []*entity.UserDevice{stale}}
	push := &fakePush{errors: map[string]error{"stale": service.ErrInvalidToken}}

	dispatcher := newTestDispatcher(registry, repo, push)

	err := dispatcher.Dispatch(context.Background(), &entity.Notification{Recipient: userID, Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{stale.ID}, repo.deactivated)
}

func TestDispatch_UnreachableRecipientIsNotAnError(t *testing.T) {
	registry := &fakeRegistry{}
	repo := &fakeDeviceRepo{}
	push := &fakePush{}

	dispatcher := newTestDispatcher(registry, repo, push)

	err := dispatcher.Dispatch(context.Background(), &entity.Notification{Recipient: uuid.New(), Body: "hi"})
	require.NoError(t, err)
	assert.Empty(t, push.sentTokens())
}

func TestDispatch_DeviceQueryFailureSurfaces(t *testing.T) {
	registry := &fakeRegistry{}
	repo := &fakeDeviceRepo{findErr: repository.ErrDeviceNotFound}
	push := &fakePush{}

	dispatcher := newTestDispatcher(registry, repo, push)

	err := dispatcher.Dispatch(context.Background(), &entity.Notification{Recipient: uuid.New(), Body: "hi"})
	assert.Error(t, err)
}

func TestRun_UserRemovedEvictsSessions(t *testing.T) {
	userID := uuid.New()
	registry := &fakeRegistry{}
	dispatcher := newTestDispatcher(registry, &fakeDeviceRepo{}, &fakePush{})

	events := make(chan event.Event, 1)
	events <- event.UserRemoved{UserID: userID}
	close(events)

	err := dispatcher.Run(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{userID}, registry.evicted)
}

func TestRun_TokenRemovedDeactivatesDevice(t *testing.T) {
	tokenID := uuid.New()
	repo := &fakeDeviceRepo{}
	dispatcher := newTestDispatcher(&fakeRegistry{}, repo, &fakePush{})

	events := make(chan event.Event, 1)
	events <- event.TokenRemoved{UserID: uuid.New(), TokenID: tokenID}
	close(events)

	err := dispatcher.Run(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tokenID}, repo.deactivated)
}

func TestRun_NotificationEventDispatched(t *testing.T) {
	userID := uuid.New()
	registry := &fakeRegistry{delivered: 1}
	dispatcher := newTestDispatcher(registry, &fakeDeviceRepo{}, &fakePush{})

	events := make(chan event.Event, 1)
	events <- event.Notification{Recipient: userID, Title: "hello"}
	close(events)

	err := dispatcher.Run(context.Background(), events)
	require.NoError(t, err)
	require.Len(t, registry.sent, 1)
	assert.Contains(t, string(registry.sent[0]), `"title":"hello"`)
}

func TestDispatcherRun_StopsOnContextCancel(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeRegistry{}, &fakeDeviceRepo{}, &fakePush{})

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan event.Event)

	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx, events) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}
