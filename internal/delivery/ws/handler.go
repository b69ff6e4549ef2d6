package ws

import (
	"log/slog"
	"net/http"

	"beacon/internal/domain/service"
	"beacon/internal/realtime"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set Authorization headers on sockets; the token query
	// parameter is the credential, so origin checking adds nothing here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler authenticates and upgrades socket requests, then hands the
// connection to the session registry.
type Handler struct {
	validator service.AccessTokenValidator
	registry  *realtime.Registry
	logger    *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(validator service.AccessTokenValidator, registry *realtime.Registry, logger *slog.Logger) *Handler {
	return &Handler{
		validator: validator,
		registry:  registry,
		logger:    logger,
	}
}

// HandleUpgrade validates the access token and upgrades the request. An
// invalid credential is rejected with 401 before the upgrade handshake.
func (h *Handler) HandleUpgrade(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}

	userID, err := h.validator.ValidateAccessToken(token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
	}

	sock, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		return errors.WithStack(err)
	}

	connID := uuid.New()
	h.registry.Bind(userID, connID, sock)

	h.logger.Info("socket session opened",
		slog.String("user_id", userID.String()),
		slog.String("connection_id", connID.String()),
	)

	return nil
}
