// Package oauth manages the bearer token for the push provider's HTTP API.
package oauth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"beacon/config"
	"beacon/internal/domain/service"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"golang.org/x/sync/singleflight"
)

// safetyMargin is subtracted from the lease expiry: a lease inside the
// margin is treated as expiring and refreshed before use.
const safetyMargin = 60 * time.Second

// lease is one immutable token value. It is replaced wholesale on refresh,
// never mutated, so a holder can keep using the string it was handed even
// after a newer lease lands in the manager.
type lease struct {
	accessToken string
	expiresAt   time.Time
}

func (l *lease) valid(now time.Time) bool {
	return l != nil && now.Before(l.expiresAt.Add(-safetyMargin))
}

// Manager caches one lease and refreshes it with a client-credentials
// grant. Refreshes are single-flight: concurrent callers finding the lease
// absent or expiring all wait on the same network call and observe the
// same result, success or failure.
type Manager struct {
	cfg    *config.PushConfig
	client *http.Client
	logger *slog.Logger

	mu    sync.RWMutex
	lease *lease

	group singleflight.Group
}

// Params holds dependencies for the token manager.
type Params struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

// NewManager creates the token manager for the configured provider.
func NewManager(params Params) service.TokenSource {
	return newManager(params.Config.Push, params.Logger)
}

func newManager(cfg *config.PushConfig, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

var _ service.TokenSource = (*Manager)(nil)

// Token returns the cached token when it is still comfortably valid, and
// otherwise joins the single in-flight refresh.
func (m *Manager) Token(ctx context.Context) (string, error) {
	now := time.Now()

	m.mu.RLock()
	current := m.lease
	m.mu.RUnlock()

	if current.valid(now) {
		return current.accessToken, nil
	}

	ch := m.group.DoChan("refresh", func() (any, error) {
		return m.refresh(ctx)
	})

	select {
	case <-ctx.Done():
		// This caller stops waiting. The refresh itself runs on the winning
		// caller's context, so cancelling the winner cancels the shared
		// HTTP call and every remaining waiter observes that error.
		return "", errors.WithStack(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}

		refreshed, ok := res.Val.(*lease)
		if !ok {
			return "", errors.New("unexpected refresh result type")
		}

		return refreshed.accessToken, nil
	}
}

// Invalidate drops the cached lease so the next Token call refreshes,
// regardless of the recorded expiry. Used when the provider rejects the
// token early.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.lease = nil
	m.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (m *Manager) refresh(ctx context.Context) (*lease, error) {
	// Another waiter may have completed a refresh between the staleness
	// check and this call landing; reuse its lease.
	now := time.Now()
	m.mu.RLock()
	current := m.lease
	m.mu.RUnlock()
	if current.valid(now) {
		return current, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
	}
	if len(m.cfg.Scopes) > 0 {
		form.Set("scope", strings.Join(m.cfg.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(service.ErrTokenRefreshFailed, err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(service.ErrTokenRefreshFailed, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(service.ErrTokenRefreshFailed, err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(service.ErrTokenRefreshFailed,
			"token endpoint returned %d", resp.StatusCode)
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(service.ErrTokenRefreshFailed, err.Error())
	}
	if payload.AccessToken == "" || payload.ExpiresIn <= 0 {
		return nil, errors.Wrap(service.ErrTokenRefreshFailed, "token endpoint returned empty lease")
	}

	refreshed := &lease{
		accessToken: payload.AccessToken,
		expiresAt:   time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}

	m.mu.Lock()
	m.lease = refreshed
	m.mu.Unlock()

	m.logger.Debug("oauth lease refreshed",
		slog.Time("expires_at", refreshed.expiresAt),
	)

	return refreshed, nil
}
