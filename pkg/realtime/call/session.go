// Package call tracks the lifecycle of one audio/video call attempt, from
// initiation to a terminal state, and owns the single durable call-log write
// that every terminal transition produces.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/staffdeck/realtime-api/pkg/realtime"
)

// State is a call session state.
type State string

const (
	StateIdle      State = "idle"
	StateInitiated State = "initiated"
	StateRinging   State = "ringing"
	StateConnected State = "connected"
	StateEnded     State = "ended"
	StateMissed    State = "missed"
	StateRejected  State = "rejected"
	StateBusy      State = "busy"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition can occur from s.
func (s State) Terminal() bool {
	switch s {
	case StateEnded, StateMissed, StateRejected, StateBusy, StateFailed:
		return true
	}
	return false
}

var (
	// ErrBusy is returned when a session is initiated while another
	// session is still non-terminal for this participant.
	ErrBusy = errors.New("call: another session is active")
	// ErrTerminal is returned for transitions on a finished session.
	ErrTerminal = errors.New("call: session is in a terminal state")
)

// TransitionError reports an event applied in a state that does not accept it.
type TransitionError struct {
	From  State
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("call: cannot %s from %s", e.Event, e.From)
}

// Log is the durable record of a finished session.
type Log struct {
	SessionID       uuid.UUID         `json:"session_id"`
	CallerID        uuid.UUID         `json:"caller_id"`
	ReceiverID      uuid.UUID         `json:"receiver_id"`
	Kind            realtime.CallKind `json:"kind"`
	Status          State             `json:"status"`
	StartedAt       time.Time         `json:"started_at"`
	EndedAt         *time.Time        `json:"ended_at,omitempty"`
	DurationSeconds *int64            `json:"duration_seconds,omitempty"`
}

// Recorder persists terminal sessions. The manager guarantees at most one
// RecordCall per session id.
type Recorder interface {
	RecordCall(ctx context.Context, log Log) error
}

// StateHandler observes every state change of a session, terminal ones
// included. Called outside the session lock.
type StateHandler func(s *Session, state State)

// DefaultRingTimeout is how long a session may stay ringing before it is
// marked missed.
const DefaultRingTimeout = 30 * time.Second

// Options tunes a Manager.
type Options struct {
	RingTimeout time.Duration
	Clock       Clock
	OnState     StateHandler
	Logger      *zerolog.Logger
}

// Manager enforces the one-active-session invariant for the local
// participant and constructs sessions.
type Manager struct {
	mu       sync.Mutex
	active   *Session
	recorder Recorder
	opts     Options
	log      zerolog.Logger
}

// NewManager builds a Manager recording terminal sessions through recorder.
func NewManager(recorder Recorder, opts Options) *Manager {
	if opts.RingTimeout <= 0 {
		opts.RingTimeout = DefaultRingTimeout
	}
	if opts.Clock == nil {
		opts.Clock = NewClock()
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "call").Logger()
	}
	return &Manager{recorder: recorder, opts: opts, log: log}
}

// Initiate starts an outgoing call. It fails with ErrBusy while another
// session is non-terminal.
func (m *Manager) Initiate(caller, receiver uuid.UUID, kind realtime.CallKind) (*Session, error) {
	return m.newSession(caller, receiver, kind, StateInitiated)
}

// Incoming registers a call offered by a remote caller; the session starts
// ringing immediately. It fails with ErrBusy while another session is
// non-terminal, in which case the caller side should be signaled busy.
func (m *Manager) Incoming(sessionID uuid.UUID, caller, receiver uuid.UUID, kind realtime.CallKind) (*Session, error) {
	s, err := m.newSession(caller, receiver, kind, StateRinging)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.id = sessionID
	s.armRingTimerLocked()
	s.mu.Unlock()
	return s, nil
}

func (m *Manager) newSession(caller, receiver uuid.UUID, kind realtime.CallKind, initial State) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && !m.active.State().Terminal() {
		return nil, ErrBusy
	}
	s := &Session{
		id:       uuid.New(),
		caller:   caller,
		receiver: receiver,
		kind:     kind,
		state:    initial,
		started:  m.opts.Clock.Now(),
		mgr:      m,
	}
	m.active = s
	return s, nil
}

// Active returns the current non-terminal session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && !m.active.State().Terminal() {
		return m.active
	}
	return nil
}

func (m *Manager) clear(s *Session) {
	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()
}

// Session is the in-memory lifecycle of one call attempt. All transition
// methods are safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	id        uuid.UUID
	caller    uuid.UUID
	receiver  uuid.UUID
	kind      realtime.CallKind
	state     State
	started   time.Time
	connected time.Time
	ended     time.Time
	ringTimer Timer
	recorded  bool
	mgr       *Manager
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Caller returns the initiating participant.
func (s *Session) Caller() uuid.UUID { return s.caller }

// Receiver returns the called participant.
func (s *Session) Receiver() uuid.UUID { return s.receiver }

// Kind returns audio or video.
func (s *Session) Kind() realtime.CallKind { return s.kind }

// OfferDelivered marks the receiver as signaled and starts the ring timeout.
func (s *Session) OfferDelivered() error {
	s.mu.Lock()
	if err := s.expectLocked(StateInitiated, "deliver offer"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = StateRinging
	s.armRingTimerLocked()
	s.mu.Unlock()
	s.notify(StateRinging)
	return nil
}

// Answer connects the call.
func (s *Session) Answer() error {
	s.mu.Lock()
	if err := s.expectLocked(StateRinging, "answer"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = StateConnected
	s.connected = s.mgr.opts.Clock.Now()
	s.stopRingTimerLocked()
	s.mu.Unlock()
	s.notify(StateConnected)
	return nil
}

// Decline rejects a ringing call.
func (s *Session) Decline() error {
	return s.terminate(StateRejected, StateRinging, "decline")
}

// LineBusy marks a ringing call busy on the far side.
func (s *Session) LineBusy() error {
	return s.terminate(StateBusy, StateRinging, "mark busy")
}

// Hangup ends a connected call and fixes its duration.
func (s *Session) Hangup() error {
	return s.terminate(StateEnded, StateConnected, "hang up")
}

// Fail drives the session to failed from any non-terminal state.
func (s *Session) Fail(cause error) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrTerminal
	}
	if cause != nil {
		s.mgr.log.Warn().Err(cause).Str("session_id", s.id.String()).Msg("call failed")
	}
	s.finishLocked(StateFailed)
	s.mu.Unlock()
	s.afterTerminal(StateFailed)
	return nil
}

// ChannelClosed handles the signaling channel going away. A connected call
// becomes ended; anything else non-terminal becomes failed. The session
// never stays non-terminal after the channel is gone.
func (s *Session) ChannelClosed() error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrTerminal
	}
	final := StateFailed
	if s.state == StateConnected {
		final = StateEnded
	}
	s.finishLocked(final)
	s.mu.Unlock()
	s.afterTerminal(final)
	return nil
}

func (s *Session) terminate(final State, expect State, event string) error {
	s.mu.Lock()
	if err := s.expectLocked(expect, event); err != nil {
		s.mu.Unlock()
		return err
	}
	s.finishLocked(final)
	s.mu.Unlock()
	s.afterTerminal(final)
	return nil
}

func (s *Session) expectLocked(expect State, event string) error {
	if s.state.Terminal() {
		return ErrTerminal
	}
	if s.state != expect {
		return &TransitionError{From: s.state, Event: event}
	}
	return nil
}

func (s *Session) armRingTimerLocked() {
	timeout := s.mgr.opts.RingTimeout
	s.ringTimer = s.mgr.opts.Clock.AfterFunc(timeout, s.ringTimedOut)
}

// stopRingTimerLocked cancels the ring timer exactly once; a stale timer
// must never fire missed after the session has moved on.
func (s *Session) stopRingTimerLocked() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}

// ringTimedOut fires from the clock. The state check makes a race with a
// concurrent transition harmless.
func (s *Session) ringTimedOut() {
	s.mu.Lock()
	if s.state != StateRinging {
		s.mu.Unlock()
		return
	}
	s.finishLocked(StateMissed)
	s.mu.Unlock()
	s.afterTerminal(StateMissed)
}

// finishLocked moves the session into a terminal state.
func (s *Session) finishLocked(final State) {
	s.stopRingTimerLocked()
	s.state = final
	s.ended = s.mgr.opts.Clock.Now()
}

// afterTerminal records the call log and detaches from the manager. Runs
// outside the session lock; the recorded flag keeps persistence at most
// once per session.
func (s *Session) afterTerminal(final State) {
	s.mu.Lock()
	if s.recorded {
		s.mu.Unlock()
		return
	}
	s.recorded = true
	entry := s.logLocked()
	s.mu.Unlock()

	s.mgr.clear(s)
	if s.mgr.recorder != nil {
		if err := s.mgr.recorder.RecordCall(context.Background(), entry); err != nil {
			s.mgr.log.Warn().Err(err).Str("session_id", entry.SessionID.String()).Msg("failed to record call log")
		}
	}
	s.notify(final)
}

func (s *Session) logLocked() Log {
	entry := Log{
		SessionID:  s.id,
		CallerID:   s.caller,
		ReceiverID: s.receiver,
		Kind:       s.kind,
		Status:     s.state,
		StartedAt:  s.started,
	}
	if !s.ended.IsZero() {
		ended := s.ended
		entry.EndedAt = &ended
	}
	if s.state == StateEnded && !s.connected.IsZero() {
		secs := int64(s.ended.Sub(s.connected).Round(time.Second) / time.Second)
		entry.DurationSeconds = &secs
	}
	return entry
}

func (s *Session) notify(state State) {
	if s.mgr.opts.OnState != nil {
		s.mgr.opts.OnState(s, state)
	}
}
