// Package hub fans session events out to subscriber connections.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/thirdeye/internal/domain"
	"github.com/xiaot623/thirdeye/internal/metrics"
)

// ErrBufferFull is returned when a connection's send queue is full.
var ErrBufferFull = errors.New("send buffer full")

// ErrClosed is returned when sending to a removed connection.
var ErrClosed = errors.New("connection closed")

// Transport is the write side of a subscriber socket. *websocket.Conn satisfies it.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Config tunes heartbeats and queues.
type Config struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

// Connection is a single subscriber. The hub owns its lifecycle.
type Connection struct {
	ID          string
	ConnectedAt time.Time

	transport Transport
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	lastPong  atomic.Int64

	// session is written under the hub's index lock.
	session atomic.Pointer[string]
}

// SessionID returns the session the connection is bound to.
func (c *Connection) SessionID() string {
	return *c.session.Load()
}

// Touch records liveness from a pong or client ping.
func (c *Connection) Touch() {
	c.lastPong.Store(time.Now().UnixNano())
}

// LastPong returns the last liveness timestamp.
func (c *Connection) LastPong() time.Time {
	return time.Unix(0, c.lastPong.Load())
}

// Done is closed once the connection has been removed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// group holds the subscribers of one session.
type group struct {
	mu    sync.Mutex
	conns map[string]*Connection
}

// Hub manages subscriber connections grouped by session.
type Hub struct {
	cfg Config

	// mu guards the group index and connection index, never delivery.
	mu     sync.RWMutex
	groups map[string]*group
	conns  map[string]*Connection
}

// New creates a new Hub.
func New(cfg Config) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Hub{
		cfg:    cfg,
		groups: make(map[string]*group),
		conns:  make(map[string]*Connection),
	}
}

// AddConnection registers a transport under a session and starts its writer.
// An empty sessionID subscribes to global messages only.
func (h *Hub) AddConnection(t Transport, sessionID string) *Connection {
	conn := &Connection{
		ID:          uuid.New().String(),
		ConnectedAt: time.Now(),
		transport:   t,
		send:        make(chan []byte, h.cfg.SendBuffer),
		done:        make(chan struct{}),
	}
	conn.session.Store(&sessionID)
	conn.Touch()

	h.mu.Lock()
	h.conns[conn.ID] = conn
	g := h.groupLocked(sessionID)
	g.mu.Lock()
	g.conns[conn.ID] = conn
	g.mu.Unlock()
	h.mu.Unlock()

	metrics.HubConnections.Inc()
	go h.writePump(conn)

	log.Printf("INFO: connection %s registered (session: %s)", conn.ID, sessionID)
	return conn
}

// RemoveConnection unregisters and closes a connection. It is idempotent.
func (h *Hub) RemoveConnection(conn *Connection) {
	h.remove(conn, "closed")
}

func (h *Hub) remove(conn *Connection, reason string) {
	h.mu.Lock()
	_, ok := h.conns[conn.ID]
	if ok {
		delete(h.conns, conn.ID)
		h.leaveLocked(conn)
	}
	h.mu.Unlock()

	conn.closeOnce.Do(func() {
		close(conn.done)
		conn.transport.Close()
	})
	if ok {
		metrics.HubConnections.Dec()
		metrics.HubEvictions.WithLabelValues(reason).Inc()
		log.Printf("INFO: connection %s removed (%s)", conn.ID, reason)
	}
}

// BindSession moves a connection to another session group.
func (h *Hub) BindSession(conn *Connection, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn.ID]; !ok || conn.SessionID() == sessionID {
		return
	}

	h.leaveLocked(conn)
	conn.session.Store(&sessionID)
	g := h.groupLocked(sessionID)
	g.mu.Lock()
	g.conns[conn.ID] = conn
	g.mu.Unlock()
}

func (h *Hub) leaveLocked(conn *Connection) {
	sessionID := conn.SessionID()
	g := h.groups[sessionID]
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.conns, conn.ID)
	empty := len(g.conns) == 0
	g.mu.Unlock()
	if empty {
		delete(h.groups, sessionID)
	}
}

func (h *Hub) groupLocked(sessionID string) *group {
	g := h.groups[sessionID]
	if g == nil {
		g = &group{conns: make(map[string]*Connection)}
		h.groups[sessionID] = g
	}
	return g
}

// BroadcastToSession delivers msg to every subscriber of a session.
func (h *Hub) BroadcastToSession(sessionID string, msg *domain.BroadcastMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.mu.RLock()
	g := h.groups[sessionID]
	h.mu.RUnlock()
	if g != nil {
		h.deliver(g, data, "session")
	}
	return nil
}

// BroadcastToAll delivers msg to every subscriber.
func (h *Hub) BroadcastToAll(msg *domain.BroadcastMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.mu.RLock()
	groups := make([]*group, 0, len(h.groups))
	for _, g := range h.groups {
		groups = append(groups, g)
	}
	h.mu.RUnlock()

	for _, g := range groups {
		h.deliver(g, data, "all")
	}
	return nil
}

// deliver enqueues data for each member under the group lock so every member
// sees the same order. Members with a full queue are evicted afterwards.
func (h *Hub) deliver(g *group, data []byte, scope string) {
	var evict []*Connection
	g.mu.Lock()
	for _, conn := range g.conns {
		select {
		case conn.send <- data:
			metrics.HubBroadcasts.WithLabelValues(scope, "queued").Inc()
		default:
			metrics.HubBroadcasts.WithLabelValues(scope, "dropped").Inc()
			evict = append(evict, conn)
		}
	}
	g.mu.Unlock()

	for _, conn := range evict {
		log.Printf("WARN: connection %s send buffer full, removing", conn.ID)
		h.remove(conn, "buffer_full")
	}
}

// Send queues a message for a single connection.
func (h *Hub) Send(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-conn.done:
		return ErrClosed
	default:
	}
	select {
	case conn.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// writePump is the single delivery path for a connection.
func (h *Hub) writePump(conn *Connection) {
	var tick <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-conn.done:
			return
		case data := <-conn.send:
			if err := h.write(conn, websocket.TextMessage, data); err != nil {
				log.Printf("WARN: failed to write to connection %s: %v", conn.ID, err)
				h.remove(conn, "write_failed")
				return
			}
		case <-tick:
			if err := h.write(conn, websocket.PingMessage, nil); err != nil {
				h.remove(conn, "write_failed")
				return
			}
		}
	}
}

func (h *Hub) write(conn *Connection, messageType int, data []byte) error {
	if h.cfg.WriteTimeout > 0 {
		conn.transport.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	}
	return conn.transport.WriteMessage(messageType, data)
}

// Sweep removes connections whose last pong is older than the pong wait.
func (h *Hub) Sweep(now time.Time) int {
	if h.cfg.PongWait <= 0 {
		return 0
	}
	h.mu.RLock()
	var stale []*Connection
	for _, conn := range h.conns {
		if now.Sub(conn.LastPong()) > h.cfg.PongWait {
			stale = append(stale, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range stale {
		log.Printf("INFO: connection %s missed heartbeat, removing", conn.ID)
		h.remove(conn, "stale")
	}
	return len(stale)
}

// PongWait is how long a connection may stay silent before it is reclaimed.
func (h *Hub) PongWait() time.Duration {
	return h.cfg.PongWait
}

// sweepInterval keeps a dead subscriber from outliving the pong wait by more than half of it.
func (h *Hub) sweepInterval() time.Duration {
	interval := h.cfg.PingInterval
	if half := h.cfg.PongWait / 2; half > 0 && (interval <= 0 || half < interval) {
		interval = half
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return interval
}

// Run sweeps stale connections until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.sweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Sweep(now)
		}
	}
}

// Close removes every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		h.remove(c, "shutdown")
	}
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// SessionCount returns the number of sessions with subscribers.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.groups)
	if _, ok := h.groups[""]; ok {
		n--
	}
	return n
}

// HasSubscribers reports whether a session has any live connection.
func (h *Hub) HasSubscribers(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.groups[sessionID]
	return ok
}
