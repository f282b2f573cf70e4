// Package hub keeps the registry of live per-user connections and delivers
// completion notifications to them. Single-process, in-memory: a user who is
// offline simply does not receive the push, nothing is queued for later.
package hub

import (
	"log/slog"
	"sync"
)

// Conn is the write side of one live connection. Implementations are not
// required to be safe for concurrent writes; the hub serializes them.
type Conn interface {
	WriteMessage(payload []byte) error
	Close() error
}

const sendBuffer = 32

// client owns the single writer goroutine for one connection, which is what
// makes deliveries to a destination serialized and ordered.
type client struct {
	userID uint64
	conn   Conn

	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(userID uint64, conn Conn) *client {
	return &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.conn.WriteMessage(payload); err != nil {
				slog.Warn("hub: write to connection failed",
					slog.Uint64("user_id", c.userID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// enqueue hands a payload to the writer, waiting briefly for buffer space so
// ordered bursts are not thinned out. Returns false once the client's
// unregister has started. Slow connections are bounded by the write deadline
// the Conn implementation carries, not here.
func (c *client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	}
}

func (c *client) stop() {
	c.closeOnce.Do(func() { close(c.done) })
}

type Hub struct {
	mu     sync.RWMutex
	users  map[uint64]*client
	conns  map[Conn]*client
	online int
}

func New() *Hub {
	return &Hub{
		users: make(map[uint64]*client),
		conns: make(map[Conn]*client),
	}
}

// Register adds a live connection for userID. A prior entry for the same
// user is displaced (last writer wins) but its connection is not closed
// here; the owner closes it and unregisters.
func (h *Hub) Register(userID uint64, conn Conn) {
	c := newClient(userID, conn)

	h.mu.Lock()
	h.users[userID] = c
	h.conns[conn] = c
	h.online++
	online := h.online
	h.mu.Unlock()

	go c.writeLoop()

	slog.Info("hub: connection registered",
		slog.Uint64("user_id", userID),
		slog.Int("online", online),
	)
}

// Unregister removes a connection from the registry. The userID mapping is
// cleared only if this connection is still the current one for that user.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	c, ok := h.conns[conn]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, conn)
	if h.users[c.userID] == c {
		delete(h.users, c.userID)
	}
	h.online--
	online := h.online
	h.mu.Unlock()

	c.stop()

	slog.Info("hub: connection unregistered",
		slog.Uint64("user_id", c.userID),
		slog.Int("online", online),
	)
}

// SendToUser delivers payload to the user's current connection. A user with
// no live connection is a silent no-op. Delivery is asynchronous but ordered:
// two calls for the same user are written in call order.
func (h *Hub) SendToUser(userID uint64, payload []byte) {
	h.mu.RLock()
	c := h.users[userID]
	h.mu.RUnlock()

	if c == nil {
		return
	}

	if !c.enqueue(payload) {
		slog.Warn("hub: notification dropped",
			slog.Uint64("user_id", userID),
		)
	}
}

// Broadcast delivers payload to every live connection. Per-connection
// failures never abort delivery to the others.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.enqueue(payload) {
			slog.Warn("hub: broadcast to connection dropped",
				slog.Uint64("user_id", c.userID),
			)
		}
	}
}

// CloseAll stops every writer and closes every connection. Used on shutdown;
// the hub is not reusable afterwards without re-registration.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.users = make(map[uint64]*client)
	h.conns = make(map[Conn]*client)
	h.online = 0
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
		if err := c.conn.Close(); err != nil {
			slog.Warn("hub: close connection failed",
				slog.Uint64("user_id", c.userID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Online returns the number of live connections.
func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online
}
