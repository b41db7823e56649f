// Package bus maintains the single realtime connection a client process
// shares across every component that wants server events. Subscribers get
// each inbound event exactly once, in arrival order; the underlying
// websocket lives as long as at least one subscriber is registered.
package bus

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/staffdeck/realtime-api/pkg/realtime"
)

// EventHandler receives every inbound event.
type EventHandler func(ev realtime.Envelope)

// ConnHandler observes connected/disconnected transitions. Transport errors
// are never surfaced beyond this boolean.
type ConnHandler func(connected bool)

// Options configures a Bus.
type Options struct {
	// URL of the gateway websocket endpoint, e.g. "ws://host:8080/ws".
	URL string
	// Token is appended to the dial URL for the authenticated upgrade.
	Token string

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	WriteTimeout   time.Duration

	Dialer *websocket.Dialer
	Logger *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

type subscriber struct {
	id      int
	onEvent EventHandler
	onConn  ConnHandler
}

// Bus is the shared event channel. Construct one per process on app start
// and dispose it on teardown; components attach through Subscribe.
type Bus struct {
	opts Options
	log  zerolog.Logger

	mu        sync.Mutex
	userID    uuid.UUID
	baseCtx   context.Context
	subs      []*subscriber
	nextSubID int
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds a Bus. No connection is made until Connect.
func New(opts Options) *Bus {
	opts = opts.withDefaults()
	var log zerolog.Logger
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "event_bus").Logger()
	} else {
		log = zerolog.Nop()
	}
	return &Bus{opts: opts, log: log}
}

// Connect binds the bus to userID. The socket itself opens only while at
// least one subscriber is registered; a bare Connect records identity and
// stays idle. Calling it again for the same user is a no-op; calling it
// for a different user tears the existing connection down and replaces it.
func (b *Bus) Connect(ctx context.Context, userID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		if b.userID == userID {
			return
		}
		b.log.Info().Str("user_id", b.userID.String()).Msg("replacing connection for new user")
		b.stopLocked()
	}
	b.userID = userID
	b.baseCtx = ctx

	if len(b.subs) > 0 {
		b.startLocked()
	}
}

// startLocked launches the connection loop. Caller holds b.mu, has set the
// identity, and has verified no loop is running.
func (b *Bus) startLocked() {
	runCtx, cancel := context.WithCancel(b.baseCtx)
	b.cancel = cancel
	done := make(chan struct{})
	b.done = done
	go b.run(runCtx, b.userID, done)
}

// Subscribe registers callbacks and returns an unsubscribe function.
// Unsubscribing the last subscriber closes the underlying connection; the
// first subscriber after that reopens it, so the socket is live exactly
// while someone is listening.
func (b *Bus) Subscribe(onEvent EventHandler, onConn ConnHandler) func() {
	b.mu.Lock()
	b.nextSubID++
	sub := &subscriber{id: b.nextSubID, onEvent: onEvent, onConn: onConn}
	b.subs = append(b.subs, sub)
	if b.baseCtx != nil && b.cancel == nil {
		b.startLocked()
	}
	connected := b.connected
	b.mu.Unlock()

	// Late subscribers still learn the current state.
	if onConn != nil {
		onConn(connected)
	}

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(sub.id) })
	}
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	last := len(b.subs) == 0
	if last && b.cancel != nil {
		b.log.Debug().Msg("last subscriber gone, closing connection")
		b.stopLocked()
	}
	b.mu.Unlock()
}

// Send emits an event over the live connection. When disconnected the event
// is dropped with a warning; there is no send queue.
func (b *Bus) Send(ev realtime.Envelope) {
	b.mu.Lock()
	conn := b.conn
	connected := b.connected
	b.mu.Unlock()

	if !connected || conn == nil {
		b.log.Warn().Str("type", string(ev.Type)).Msg("send while disconnected, dropping event")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(b.opts.WriteTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		b.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("failed to send event")
	}
}

// Connected reports the current transport state.
func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Close tears the connection down regardless of remaining subscribers and
// unbinds the identity, so later subscribes stay idle. Meant for process
// shutdown.
func (b *Bus) Close() {
	b.mu.Lock()
	done := b.done
	b.baseCtx = nil
	b.stopLocked()
	b.mu.Unlock()
	if done != nil {
		<-done
	}
}

// stopLocked cancels the run loop and closes the socket. Caller holds b.mu.
func (b *Bus) stopLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.connected = false
	b.done = nil
}

func (b *Bus) dialURL() string {
	u := b.opts.URL
	if b.opts.Token == "" {
		return u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	q := parsed.Query()
	q.Set("token", b.opts.Token)
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

func (b *Bus) run(ctx context.Context, userID uuid.UUID, done chan struct{}) {
	defer close(done)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.opts.InitialBackoff
	policy.MaxInterval = b.opts.MaxBackoff
	policy.MaxElapsedTime = 0 // retry until torn down

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := b.opts.Dialer.DialContext(ctx, b.dialURL(), nil)
		if err != nil {
			wait := policy.NextBackOff()
			b.log.Warn().Err(err).Dur("retry_in", wait).Msg("connection failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		policy.Reset()

		// Re-announce identity so server-side routing resumes.
		hello, err := realtime.NewEnvelope(realtime.EventSubscribe, realtime.SubscribePayload{UserID: userID})
		if err == nil {
			conn.SetWriteDeadline(time.Now().Add(b.opts.WriteTimeout))
			err = conn.WriteJSON(hello)
		}
		if err != nil {
			b.log.Warn().Err(err).Msg("subscribe handshake failed")
			conn.Close()
			continue
		}

		b.adoptConn(conn)
		b.log.Info().Str("user_id", userID.String()).Msg("connected")

		b.readLoop(ctx, conn)

		b.clearConn(conn)
		if ctx.Err() != nil {
			return
		}
		b.log.Info().Msg("disconnected, reconnecting")
	}
}

// readLoop dispatches inbound events until the connection breaks.
func (b *Bus) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var ev realtime.Envelope
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				b.log.Warn().Err(err).Msg("read failed")
			}
			conn.Close()
			return
		}
		b.dispatch(ev)
	}
}

// dispatch delivers ev to every subscriber in registration order. Delivery
// is synchronous on the read loop, which preserves arrival order.
func (b *Bus) dispatch(ev realtime.Envelope) {
	b.mu.Lock()
	subs := make([]*subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		if s.onEvent != nil {
			s.onEvent(ev)
		}
	}
}

func (b *Bus) adoptConn(conn *websocket.Conn) {
	b.mu.Lock()
	// The loop may have been torn down while the dial was in flight; in
	// that case the fresh connection must not be resurrected here.
	if b.cancel == nil {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.conn = conn
	b.connected = true
	subs := make([]*subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		if s.onConn != nil {
			s.onConn(true)
		}
	}
}

// clearConn drops conn if it is still the current one. A loop winding down
// after teardown must not clobber the connection of a loop started since.
func (b *Bus) clearConn(conn *websocket.Conn) {
	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	b.connected = false
	subs := make([]*subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		if s.onConn != nil {
			s.onConn(false)
		}
	}
}
