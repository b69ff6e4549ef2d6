// Package push sends notifications to single devices through the push
// provider's HTTP v1 send endpoint.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"beacon/config"
	"beacon/internal/domain/entity"
	"beacon/internal/domain/service"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// message is the provider wire format: one device token plus the display
// notification and data fields.
type message struct {
	Message struct {
		Token        string            `json:"token"`
		Notification *displayFields    `json:"notification,omitempty"`
		Data         map[string]string `json:"data,omitempty"`
	} `json:"message"`
}

type displayFields struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// Client is the HTTP push sender. Auth is delegated to the token source;
// a rejected bearer triggers exactly one forced refresh and retry.
type Client struct {
	endpoint string
	tokens   service.TokenSource
	client   *http.Client
	logger   *slog.Logger
}

// Params holds dependencies for the push client.
type Params struct {
	fx.In

	Config *config.Config
	Tokens service.TokenSource
	Logger *slog.Logger
}

// NewClient creates the push sender for the configured provider.
func NewClient(params Params) service.PushSender {
	return newClient(params.Config.Push, params.Tokens, params.Logger)
}

func newClient(cfg *config.PushConfig, tokens service.TokenSource, logger *slog.Logger) *Client {
	return &Client{
		endpoint: cfg.SendEndpoint,
		tokens:   tokens,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		logger:   logger,
	}
}

var _ service.PushSender = (*Client)(nil)

// Send delivers one notification to one device token.
func (c *Client) Send(ctx context.Context, deviceToken string, notification *entity.Notification) error {
	body, err := json.Marshal(buildMessage(deviceToken, notification))
	if err != nil {
		return errors.WithStack(err)
	}

	err = c.attempt(ctx, body)
	if errors.Is(err, service.ErrAuthExpired) {
		// One forced refresh, one retry. A second auth failure surfaces.
		c.tokens.Invalidate()
		err = c.attempt(ctx, body)
	}

	return err
}

func (c *Client) attempt(ctx context.Context, body []byte) error {
	bearer, err := c.tokens.Token(ctx)
	if err != nil {
		return errors.WithMessage(err, "acquire bearer token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(service.ErrProviderUnavailable, err.Error())
	}
	defer resp.Body.Close()

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))

	return classifyResponse(resp.StatusCode, detail)
}

// classifyResponse maps a provider response onto the delivery error
// taxonomy.
func classifyResponse(status int, detail []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Wrapf(service.ErrAuthExpired, "provider returned %d", status)

	case status == http.StatusNotFound || isUnregisteredToken(detail):
		return errors.Wrapf(service.ErrInvalidToken, "provider returned %d", status)

	case status >= 500:
		return errors.Wrapf(service.ErrProviderUnavailable, "provider returned %d", status)

	default:
		return errors.Wrapf(service.ErrPayloadRejected, "provider returned %d: %s",
			status, strings.TrimSpace(string(detail)))
	}
}

// isUnregisteredToken detects the provider's token error codes inside a
// 400-class body.
func isUnregisteredToken(detail []byte) bool {
	body := string(detail)

	return strings.Contains(body, "UNREGISTERED") ||
		strings.Contains(body, "INVALID_ARGUMENT") && strings.Contains(body, "token")
}

func buildMessage(deviceToken string, notification *entity.Notification) *message {
	msg := &message{}
	msg.Message.Token = deviceToken

	if notification.Title != "" || notification.Body != "" {
		msg.Message.Notification = &displayFields{
			Title: notification.Title,
			Body:  notification.Body,
		}
	}

	data := make(map[string]string)
	if notification.URL != "" {
		data["url"] = notification.URL
	}
	if notification.Payload != "" {
		data["payload"] = notification.Payload
	}
	if len(data) > 0 {
		msg.Message.Data = data
	}

	return msg
}
