package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	// writeWait bounds a single socket write.
	writeWait = 10 * time.Second

	// pongWait is how long the client has between pongs before the read
	// loop declares the connection dead.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize limits inbound frames; clients only speak ping/pong,
	// anything larger is a protocol violation.
	maxMessageSize = 512

	// sendBufferSize is the per-session outbound buffer. A full buffer
	// marks the session as too slow and Send fails.
	sendBufferSize = 64
)

var (
	errSessionSaturated = errors.New("session send buffer full")
	errSessionClosed    = errors.New("session closed")
)

// wsConn is one live socket with a buffered outbound queue. gorilla allows
// a single concurrent writer, so all writes go through writePump. The mutex
// orders Send against Close: dispatchers keep sending from their own
// goroutines while the read loop or an eviction tears the session down, and
// a send must never land on the closed queue.
type wsConn struct {
	sock   *websocket.Conn
	logger *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newWSConn(sock *websocket.Conn, logger *slog.Logger) *wsConn {
	return &wsConn{
		sock:   sock,
		send:   make(chan []byte, sendBufferSize),
		logger: logger,
	}
}

// Send queues a payload without blocking. It fails once the session is
// closed, and on a saturated buffer, which means the client stopped
// draining; the caller unregisters the session either way.
func (c *wsConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errSessionClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return errSessionSaturated
	}
}

// Close stops the write pump, which in turn sends a close frame and closes
// the socket. Safe to call more than once and concurrently with Send.
func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump is the single writer for the socket: queued payloads, periodic
// pings, and the final close frame.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.sock.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

				return
			}

			if err := c.write(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) write(messageType int, payload []byte) error {
	if err := c.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.sock.WriteMessage(messageType, payload))
}

// readLoop drains and discards inbound frames so pings/pongs and close
// frames are processed. It calls onClose synchronously before returning,
// so the session is out of the registry by the time the goroutine exits.
func (c *wsConn) readLoop(onClose func()) {
	defer func() {
		onClose()
		_ = c.sock.Close()
	}()

	c.sock.SetReadLimit(maxMessageSize)
	if err := c.sock.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.sock.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("session closed unexpectedly", slog.Any("error", err))
			}

			return
		}
		// Application messages from clients are not part of the protocol;
		// they are read and dropped to keep control frames flowing.
	}
}
