// Package stream fans platform events out to WebSocket consumers. Delivery
// is best-effort: a client whose send fails is dropped from the registry,
// never retried, and never allowed to stall other clients.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emberwatch/fireline/internal/monitoring"
	"github.com/emberwatch/fireline/internal/timeutil"
)

// DefaultHeartbeatInterval is how often connected clients receive a
// {"type":"heartbeat"} frame.
const DefaultHeartbeatInterval = 10 * time.Second

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The platform fronts its own access control; origin checks happen at
	// the auth middleware, not per socket.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client serializes writes to one connection. gorilla/websocket allows only
// one concurrent writer per conn.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub is the WebSocket subscriber registry.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}

	clock         timeutil.Clock
	heartbeat     time.Duration
	onCountChange func(int)
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock substitutes the heartbeat clock, for tests.
func WithClock(clock timeutil.Clock) Option {
	return func(h *Hub) { h.clock = clock }
}

// WithHeartbeatInterval overrides the heartbeat period.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// WithCountChange installs a hook observing the client count after every
// admission or removal.
func WithCountChange(fn func(int)) Option {
	return func(h *Hub) { h.onCountChange = fn }
}

// NewHub returns an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:   make(map[*client]struct{}),
		clock:     timeutil.RealClock{},
		heartbeat: DefaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handler upgrades the request to a WebSocket and serves it until the client
// disconnects.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			monitoring.Logf("stream: upgrade failed: %v", err)
			return
		}
		c := &client{conn: conn}
		h.add(c)
		defer h.remove(c)

		// Read loop. Every inbound frame gets an ack; a read error means
		// the client is gone.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			if err := c.send([]byte(`{"type":"ack"}`)); err != nil {
				return
			}
		}
	}
}

// Run emits heartbeats until the context is cancelled, then closes every
// client.
func (h *Hub) Run(ctx context.Context) {
	ticker := h.clock.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C():
			h.Broadcast(map[string]any{"type": "heartbeat"})
		}
	}
}

// Broadcast sends the event to every connected client. Failing clients are
// removed; marshalling problems are logged and swallowed, consumers cannot
// observe them.
func (h *Hub) Broadcast(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		monitoring.Logf("stream: marshal broadcast: %v", err)
		return
	}

	for _, c := range h.snapshot() {
		if err := c.send(payload); err != nil {
			monitoring.Debugf("stream: dropping client: %v", err)
			h.remove(c)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	if h.onCountChange != nil {
		h.onCountChange(count)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		c.conn.Close()
		if h.onCountChange != nil {
			h.onCountChange(count)
		}
	}
}

// snapshot copies the registry so broadcast iteration never races with
// membership changes.
func (h *Hub) snapshot() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) closeAll() {
	for _, c := range h.snapshot() {
		h.remove(c)
	}
}
