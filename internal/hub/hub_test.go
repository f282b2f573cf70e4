package hub

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	failAt int // fail the n-th write (1-based), 0 means never
	closed bool
}

func (c *fakeConn) WriteMessage(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, payload)
	if c.failAt > 0 && len(c.writes) == c.failAt {
		return errors.New("write failed")
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	for i, w := range c.writes {
		out[i] = string(w)
	}
	return out
}

func waitForWrites(t *testing.T, c *fakeConn, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d writes, got %v", n, c.snapshot())
	return nil
}

func TestSendToUserUnregisteredIsNoOp(t *testing.T) {
	t.Parallel()

	h := New()
	h.SendToUser(7, []byte("hello"))
	assert.Zero(t, h.Online())
}

func TestSendToUserDelivers(t *testing.T) {
	t.Parallel()

	h := New()
	conn := &fakeConn{}
	h.Register(7, conn)

	h.SendToUser(7, []byte("hello"))

	got := waitForWrites(t, conn, 1)
	assert.Equal(t, []string{"hello"}, got)
}

func TestSendToUserPreservesOrder(t *testing.T) {
	t.Parallel()

	h := New()
	conn := &fakeConn{}
	h.Register(7, conn)

	const n = 500
	for i := 0; i < n; i++ {
		h.SendToUser(7, fmt.Appendf(nil, "msg-%04d", i))
	}

	got := waitForWrites(t, conn, n)
	for i := 0; i < n; i++ {
		require.Equal(t, fmt.Sprintf("msg-%04d", i), got[i])
	}
}

func TestRegisterLastWriterWins(t *testing.T) {
	t.Parallel()

	h := New()
	old := &fakeConn{}
	fresh := &fakeConn{}

	h.Register(7, old)
	h.Register(7, fresh)

	h.SendToUser(7, []byte("after reconnect"))

	got := waitForWrites(t, fresh, 1)
	assert.Equal(t, []string{"after reconnect"}, got)
	assert.Empty(t, old.snapshot())

	// Unregistering the displaced connection must not clear the fresh one.
	h.Unregister(old)
	h.SendToUser(7, []byte("still here"))
	got = waitForWrites(t, fresh, 2)
	assert.Equal(t, "still here", got[1])
}

func TestUnregisterStopsDelivery(t *testing.T) {
	t.Parallel()

	h := New()
	conn := &fakeConn{}
	h.Register(7, conn)
	h.Unregister(conn)

	h.SendToUser(7, []byte("ghost"))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, conn.snapshot())
	assert.Zero(t, h.Online())
}

func TestBroadcastReachesAllDespiteFailures(t *testing.T) {
	t.Parallel()

	h := New()
	a := &fakeConn{failAt: 1}
	b := &fakeConn{}
	c := &fakeConn{}
	h.Register(1, a)
	h.Register(2, b)
	h.Register(3, c)

	h.Broadcast([]byte("all hands"))

	waitForWrites(t, a, 1)
	waitForWrites(t, b, 1)
	waitForWrites(t, c, 1)
}

func TestOnlineCounter(t *testing.T) {
	t.Parallel()

	h := New()
	a := &fakeConn{}
	b := &fakeConn{}

	h.Register(1, a)
	h.Register(2, b)
	assert.Equal(t, 2, h.Online())

	h.Unregister(a)
	assert.Equal(t, 1, h.Online())

	h.Unregister(a) // double unregister is harmless
	assert.Equal(t, 1, h.Online())
}

func TestConcurrentSendsToDistinctUsers(t *testing.T) {
	t.Parallel()

	h := New()
	conns := make([]*fakeConn, 8)
	for i := range conns {
		conns[i] = &fakeConn{}
		h.Register(uint64(i+1), conns[i])
	}

	const perUser = 100
	var wg sync.WaitGroup
	for u := range conns {
		u := u
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				h.SendToUser(uint64(u+1), fmt.Appendf(nil, "u%d-%04d", u, i))
			}
		}()
	}
	wg.Wait()

	for u, conn := range conns {
		got := waitForWrites(t, conn, perUser)
		for i := 0; i < perUser; i++ {
			require.Equal(t, fmt.Sprintf("u%d-%04d", u, i), got[i])
		}
	}
}

func TestCloseAllStopsEverything(t *testing.T) {
	t.Parallel()

	h := New()
	a, b := &fakeConn{}, &fakeConn{}
	h.Register(1, a)
	h.Register(2, b)
	require.Equal(t, 2, h.Online())

	h.CloseAll()

	assert.Zero(t, h.Online())
	assert.True(t, a.closed)
	assert.True(t, b.closed)

	h.SendToUser(1, []byte("late"))
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, a.snapshot())
}
