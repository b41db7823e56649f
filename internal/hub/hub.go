// Package hub keeps the registry of live websocket connections, one per
// user, and fans events out to them.
package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/staffdeck/realtime-api/pkg/metrics"
	"github.com/staffdeck/realtime-api/pkg/realtime"
)

// PresenceHandler observes a user coming online or going offline. Replacing
// a user's connection does not fire it.
type PresenceHandler func(userID uuid.UUID, online bool)

// Conn is one registered client connection. The websocket itself is written
// only by the connection's write pump, which drains Out.
type Conn struct {
	UserID uuid.UUID
	WS     *websocket.Conn
	// Out is the bounded outbound queue (backpressure). It is never
	// closed; Done signals teardown instead so enqueuers cannot race a
	// close.
	Out  chan realtime.Envelope
	done chan struct{}

	closeOnce sync.Once
}

// Close tears the connection down. Safe to call repeatedly.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.WS != nil {
			c.WS.Close()
		}
	})
}

// Done is closed when the connection is torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

type Hub struct {
	mu         sync.RWMutex
	conns      map[uuid.UUID]*Conn
	queueSize  int
	onPresence PresenceHandler
	log        zerolog.Logger
}

// New builds a hub with the given per-connection queue size.
func New(queueSize int, onPresence PresenceHandler, logger *zerolog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "hub").Logger()
	}
	return &Hub{
		conns:      make(map[uuid.UUID]*Conn),
		queueSize:  queueSize,
		onPresence: onPresence,
		log:        log,
	}
}

// Register binds ws as the user's connection. An existing connection for
// the same user is closed and replaced, so each user holds at most one.
func (h *Hub) Register(userID uuid.UUID, ws *websocket.Conn) *Conn {
	c := &Conn{
		UserID: userID,
		WS:     ws,
		Out:    make(chan realtime.Envelope, h.queueSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	prev := h.conns[userID]
	h.conns[userID] = c
	h.mu.Unlock()

	if prev != nil {
		h.log.Debug().Str("user_id", userID.String()).Msg("replacing existing connection")
		prev.Close()
	} else if h.onPresence != nil {
		h.onPresence(userID, true)
	}
	return c
}

// Unregister removes c if it is still the user's current connection. A
// connection replaced by Register is not the current one and is ignored.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	current := h.conns[c.UserID] == c
	if current {
		delete(h.conns, c.UserID)
	}
	h.mu.Unlock()

	c.Close()
	if current && h.onPresence != nil {
		h.onPresence(c.UserID, false)
	}
}

// SendToUser enqueues ev for one user and reports whether it was accepted.
// A full queue means the client cannot keep up; the connection is dropped
// rather than blocking the sender.
func (h *Hub) SendToUser(userID uuid.UUID, ev realtime.Envelope) bool {
	h.mu.RLock()
	c, ok := h.conns[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case <-c.done:
		return false
	case c.Out <- ev:
		return true
	default:
		metrics.DroppedSends.Inc()
		h.log.Warn().Str("user_id", userID.String()).Msg("outbound queue full, dropping connection")
		h.Unregister(c)
		return false
	}
}

// Broadcast enqueues ev for every connected user.
func (h *Hub) Broadcast(ev realtime.Envelope) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case <-c.done:
		case c.Out <- ev:
		default:
			metrics.DroppedSends.Inc()
			h.log.Warn().Str("user_id", c.UserID.String()).Msg("outbound queue full, dropping connection")
			h.Unregister(c)
		}
	}
}

// IsOnline reports whether the user has a live connection.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	_, ok := h.conns[userID]
	h.mu.RUnlock()
	return ok
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	n := len(h.conns)
	h.mu.RUnlock()
	return n
}

// CloseAll tears down every connection; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[uuid.UUID]*Conn)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
