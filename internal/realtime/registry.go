// Package realtime manages live WebSocket sessions. The registry is the
// only holder of socket handles; everything else addresses users through
// the service.SessionRegistry contract.
package realtime

import (
	"log/slog"
	"sync"

	"beacon/internal/domain/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is one outbound delivery sink. *wsConn implements it for real
// sockets; tests substitute fakes.
type Conn interface {
	// Send queues the payload for delivery. It fails when the session is
	// too slow or already closed; the registry treats that as a dead
	// session and unregisters it.
	Send(payload []byte) error

	// Close tears the session down. Safe to call more than once.
	Close()
}

// Registry tracks every live session keyed by (user, connection). A user
// may hold any number of concurrent sessions (multi-device). All methods
// are safe for arbitrary concurrent callers.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[uuid.UUID]Conn
	logger   *slog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]map[uuid.UUID]Conn),
		logger:   logger,
	}
}

var _ service.SessionRegistry = (*Registry)(nil)

// Register adds a session. Registering the same (user, connection) pair
// again replaces the previous sink, closing it first.
func (r *Registry) Register(userID, connID uuid.UUID, conn Conn) {
	r.mu.Lock()
	conns, ok := r.sessions[userID]
	if !ok {
		conns = make(map[uuid.UUID]Conn)
		r.sessions[userID] = conns
	}
	prev := conns[connID]
	conns[connID] = conn
	total := len(conns)
	r.mu.Unlock()

	if prev != nil && prev != conn {
		prev.Close()
	}

	r.logger.Info("session registered",
		slog.String("user_id", userID.String()),
		slog.String("connection_id", connID.String()),
		slog.Int("user_sessions", total),
	)
}

// Unregister removes a session and closes its sink. Unknown pairs are a
// no-op, so disconnect paths may call it more than once.
func (r *Registry) Unregister(userID, connID uuid.UUID) {
	r.mu.Lock()
	var conn Conn
	if conns, ok := r.sessions[userID]; ok {
		conn = conns[connID]
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.sessions, userID)
		}
	}
	r.mu.Unlock()

	if conn == nil {
		return
	}
	conn.Close()

	r.logger.Info("session unregistered",
		slog.String("user_id", userID.String()),
		slog.String("connection_id", connID.String()),
	)
}

// SendToUser writes the payload to every live session of the user and
// returns how many accepted it. Sessions whose send fails are unregistered
// lazily; one dead socket never fails the others.
func (r *Registry) SendToUser(userID uuid.UUID, payload []byte) int {
	r.mu.RLock()
	targets := make(map[uuid.UUID]Conn, len(r.sessions[userID]))
	for connID, conn := range r.sessions[userID] {
		targets[connID] = conn
	}
	r.mu.RUnlock()

	delivered := 0
	for connID, conn := range targets {
		if err := conn.Send(payload); err != nil {
			r.logger.Warn("dropping dead session",
				slog.String("user_id", userID.String()),
				slog.String("connection_id", connID.String()),
				slog.Any("error", err),
			)
			r.Unregister(userID, connID)

			continue
		}
		delivered++
	}

	return delivered
}

// EvictUser force-disconnects every session of the user, e.g. when the bus
// announces the user was removed. Returns the number of closed sessions.
func (r *Registry) EvictUser(userID uuid.UUID) int {
	r.mu.Lock()
	conns := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}

	if len(conns) > 0 {
		r.logger.Info("user sessions evicted",
			slog.String("user_id", userID.String()),
			slog.Int("count", len(conns)),
		)
	}

	return len(conns)
}

// Close tears down every session. Called once on shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[uuid.UUID]map[uuid.UUID]Conn)
	r.mu.Unlock()

	for _, conns := range sessions {
		for _, conn := range conns {
			conn.Close()
		}
	}
}

// Bind wraps a freshly upgraded socket in a session, registers it and
// starts its pumps. The read loop unregisters the session before it exits,
// so a client disconnect is observed synchronously.
func (r *Registry) Bind(userID, connID uuid.UUID, sock *websocket.Conn) {
	conn := newWSConn(sock, r.logger)
	r.Register(userID, connID, conn)

	go conn.writePump()
	go conn.readLoop(func() {
		r.Unregister(userID, connID)
	})
}
