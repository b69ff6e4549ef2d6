package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"beacon/config"
	"beacon/internal/domain/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenEndpoint struct {
	mu       sync.Mutex
	requests atomic.Int64
	failing  bool
	delay    time.Duration
	serial   int
}

func (e *tokenEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e.requests.Add(1)
		if e.delay > 0 {
			time.Sleep(e.delay)
		}

		e.mu.Lock()
		failing := e.failing
		e.serial++
		serial := e.serial
		e.mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"Bearer","expires_in":3600}`, serial)
	}
}

func (e *tokenEndpoint) setFailing(failing bool) {
	e.mu.Lock()
	e.failing = failing
	e.mu.Unlock()
}

func newTestManager(t *testing.T, endpoint *tokenEndpoint) *Manager {
	t.Helper()

	srv := httptest.NewServer(endpoint.handler())
	t.Cleanup(srv.Close)

	return newManager(&config.PushConfig{
		SendEndpoint:   srv.URL + "/send",
		TokenEndpoint:  srv.URL,
		ClientID:       "beacon",
		ClientSecret:   "secret",
		RequestTimeout: 5 * time.Second,
	}, slog.New(slog.DiscardHandler))
}

func TestManager_Token_CachedLeaseSkipsNetwork(t *testing.T) {
	endpoint := &tokenEndpoint{}
	mgr := newTestManager(t, endpoint)
	ctx := context.Background()

	first, err := mgr.Token(ctx)
	require.NoError(t, err)

	second, err := mgr.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), endpoint.requests.Load())
}

func TestManager_Token_ConcurrentCallersSingleRefresh(t *testing.T) {
	endpoint := &tokenEndpoint{delay: 50 * time.Millisecond}
	mgr := newTestManager(t, endpoint)

	const callers = 16
	tokens := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = mgr.Token(context.Background())
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, tokens[0], tokens[i])
	}
	assert.Equal(t, int64(1), endpoint.requests.Load())
}

func TestManager_Token_RefreshFailureSharedThenRecovers(t *testing.T) {
	endpoint := &tokenEndpoint{failing: true, delay: 50 * time.Millisecond}
	mgr := newTestManager(t, endpoint)

	const callers = 8
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = mgr.Token(context.Background())
		}()
	}
	wg.Wait()

	for i := range callers {
		require.Error(t, errs[i])
		assert.ErrorIs(t, errs[i], service.ErrTokenRefreshFailed)
	}
	assert.Equal(t, int64(1), endpoint.requests.Load())

	// Once the fault clears, the next call succeeds.
	endpoint.setFailing(false)
	token, err := mgr.Token(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestManager_Invalidate_ForcesRefresh(t *testing.T) {
	endpoint := &tokenEndpoint{}
	mgr := newTestManager(t, endpoint)
	ctx := context.Background()

	first, err := mgr.Token(ctx)
	require.NoError(t, err)

	mgr.Invalidate()

	second, err := mgr.Token(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, int64(2), endpoint.requests.Load())
}

func TestManager_Token_WinnerCancellationSharedWithWaiters(t *testing.T) {
	endpoint := &tokenEndpoint{delay: 200 * time.Millisecond}
	mgr := newTestManager(t, endpoint)

	winnerCtx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	var winnerErr error
	go func() {
		defer wg.Done()
		_, winnerErr = mgr.Token(winnerCtx)
	}()

	// Let the winner start the refresh, then join it as a waiter.
	time.Sleep(20 * time.Millisecond)

	wg.Add(1)
	var waiterErr error
	go func() {
		defer wg.Done()
		_, waiterErr = mgr.Token(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()

	// The winner races its own ctx.Done against the failing refresh result;
	// either way it gets an error.
	require.Error(t, winnerErr)

	// The refresh ran on the winner's context, so the waiter observes the
	// cancelled refresh rather than hanging on it.
	require.Error(t, waiterErr)
	assert.ErrorIs(t, waiterErr, service.ErrTokenRefreshFailed)
}

func TestManager_Token_CallerCancellationDoesNotPoisonOthers(t *testing.T) {
	endpoint := &tokenEndpoint{delay: 100 * time.Millisecond}
	mgr := newTestManager(t, endpoint)

	cancelled, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	var cancelledErr error
	go func() {
		defer wg.Done()
		_, cancelledErr = mgr.Token(cancelled)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()

	require.Error(t, cancelledErr)
	assert.ErrorIs(t, cancelledErr, context.Canceled)
}
