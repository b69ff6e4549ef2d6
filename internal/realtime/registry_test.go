package realtime

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records sends and closes; fail makes every Send error like a
// dead socket.
type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	fail   bool
}

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail {
		return errors.New("broken pipe")
	}
	c.sent = append(c.sent, payload)

	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.sent)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.DiscardHandler))
}

func TestRegistry_SendToUser_UnknownUser(t *testing.T) {
	reg := newTestRegistry()

	delivered := reg.SendToUser(uuid.New(), []byte(`{}`))
	assert.Zero(t, delivered)
}

func TestRegistry_SendToUser_AllSessions(t *testing.T) {
	reg := newTestRegistry()
	userID := uuid.New()
	first := &fakeConn{}
	second := &fakeConn{}

	reg.Register(userID, uuid.New(), first)
	reg.Register(userID, uuid.New(), second)

	delivered := reg.SendToUser(userID, []byte(`{"title":"hi"}`))
	require.Equal(t, 2, delivered)
	assert.Equal(t, 1, first.sentCount())
	assert.Equal(t, 1, second.sentCount())
}

func TestRegistry_SendToUser_DeadSessionDroppedLazily(t *testing.T) {
	reg := newTestRegistry()
	userID := uuid.New()
	dead := &fakeConn{fail: true}
	live := &fakeConn{}

	reg.Register(userID, uuid.New(), dead)
	reg.Register(userID, uuid.New(), live)

	delivered := reg.SendToUser(userID, []byte(`{}`))
	assert.Equal(t, 1, delivered)
	assert.True(t, dead.isClosed())

	// The dead session is gone; only the live one remains a target.
	delivered = reg.SendToUser(userID, []byte(`{}`))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 2, live.sentCount())
}

func TestRegistry_Register_IdempotentPerPair(t *testing.T) {
	reg := newTestRegistry()
	userID := uuid.New()
	connID := uuid.New()
	first := &fakeConn{}
	replacement := &fakeConn{}

	reg.Register(userID, connID, first)
	reg.Register(userID, connID, replacement)

	delivered := reg.SendToUser(userID, []byte(`{}`))
	assert.Equal(t, 1, delivered)
	assert.True(t, first.isClosed())
	assert.Equal(t, 1, replacement.sentCount())
	assert.Zero(t, first.sentCount())
}

func TestRegistry_Unregister_LastSessionLeavesUserOffline(t *testing.T) {
	reg := newTestRegistry()
	userID := uuid.New()
	connID := uuid.New()
	conn := &fakeConn{}

	reg.Register(userID, connID, conn)
	reg.Unregister(userID, connID)

	assert.True(t, conn.isClosed())
	assert.Zero(t, reg.SendToUser(userID, []byte(`{}`)))

	// Repeated unregister of the same pair is a no-op.
	reg.Unregister(userID, connID)
}

func TestRegistry_EvictUser_ClosesAllSessions(t *testing.T) {
	reg := newTestRegistry()
	userID := uuid.New()
	first := &fakeConn{}
	second := &fakeConn{}

	reg.Register(userID, uuid.New(), first)
	reg.Register(userID, uuid.New(), second)

	evicted := reg.EvictUser(userID)
	assert.Equal(t, 2, evicted)
	assert.True(t, first.isClosed())
	assert.True(t, second.isClosed())
	assert.Zero(t, reg.SendToUser(userID, []byte(`{}`)))
}

func TestRegistry_ConcurrentRegisterAndSend(t *testing.T) {
	reg := newTestRegistry()
	userID := uuid.New()

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.Register(userID, uuid.New(), &fakeConn{})
		}()
		go func() {
			defer wg.Done()
			reg.SendToUser(userID, []byte(`{}`))
		}()
	}
	wg.Wait()

	// Every registered session is a delivery target once things settle.
	assert.Equal(t, 32, reg.SendToUser(userID, []byte(`{}`)))
}

func TestRegistry_Close_TearsDownEverything(t *testing.T) {
	reg := newTestRegistry()
	alpha := uuid.New()
	beta := uuid.New()
	connA := &fakeConn{}
	connB := &fakeConn{}

	reg.Register(alpha, uuid.New(), connA)
	reg.Register(beta, uuid.New(), connB)

	reg.Close()
	assert.True(t, connA.isClosed())
	assert.True(t, connB.isClosed())
	assert.Zero(t, reg.SendToUser(alpha, []byte(`{}`)))
	assert.Zero(t, reg.SendToUser(beta, []byte(`{}`)))
}
