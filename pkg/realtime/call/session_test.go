package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffdeck/realtime-api/pkg/realtime"
)

// fakeClock drives AfterFunc timers manually.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock and fires due timers outside the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

// countingRecorder records every call log it receives.
type countingRecorder struct {
	mu   sync.Mutex
	logs []Log
}

func (r *countingRecorder) RecordCall(_ context.Context, entry Log) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
	return nil
}

func (r *countingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

func (r *countingRecorder) last() Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs[len(r.logs)-1]
}

func newTestManager(t *testing.T) (*Manager, *fakeClock, *countingRecorder) {
	t.Helper()
	clock := newFakeClock()
	rec := &countingRecorder{}
	mgr := NewManager(rec, Options{RingTimeout: 30 * time.Second, Clock: clock})
	return mgr, clock, rec
}

func TestFullCallFlowEndsWithDuration(t *testing.T) {
	mgr, clock, rec := newTestManager(t)

	s, err := mgr.Initiate(uuid.New(), uuid.New(), realtime.CallVideo)
	require.NoError(t, err)
	assert.Equal(t, StateInitiated, s.State())

	require.NoError(t, s.OfferDelivered())
	assert.Equal(t, StateRinging, s.State())

	clock.Advance(2 * time.Second)
	require.NoError(t, s.Answer())
	assert.Equal(t, StateConnected, s.State())

	clock.Advance(95 * time.Second)
	require.NoError(t, s.Hangup())
	assert.Equal(t, StateEnded, s.State())

	require.Equal(t, 1, rec.count(), "exactly one persistence call per session")
	entry := rec.last()
	assert.Equal(t, s.ID(), entry.SessionID)
	assert.Equal(t, StateEnded, entry.Status)
	require.NotNil(t, entry.DurationSeconds)
	assert.EqualValues(t, 95, *entry.DurationSeconds)
	require.NotNil(t, entry.EndedAt)
}

func TestRingTimeoutMarksMissedOnce(t *testing.T) {
	mgr, clock, rec := newTestManager(t)

	s, err := mgr.Initiate(uuid.New(), uuid.New(), realtime.CallAudio)
	require.NoError(t, err)
	require.NoError(t, s.OfferDelivered())

	clock.Advance(29 * time.Second)
	assert.Equal(t, StateRinging, s.State())

	clock.Advance(2 * time.Second)
	assert.Equal(t, StateMissed, s.State())
	assert.Equal(t, 1, rec.count())

	// Nothing fires twice.
	clock.Advance(time.Hour)
	assert.Equal(t, StateMissed, s.State())
	assert.Equal(t, 1, rec.count())
}

func TestAnswerCancelsRingTimer(t *testing.T) {
	mgr, clock, rec := newTestManager(t)

	s, err := mgr.Initiate(uuid.New(), uuid.New(), realtime.CallAudio)
	require.NoError(t, err)
	require.NoError(t, s.OfferDelivered())

	clock.Advance(time.Second)
	require.NoError(t, s.Answer())

	// The 30s timer must not fire a spurious missed on a connected call.
	clock.Advance(30 * time.Second)
	assert.Equal(t, StateConnected, s.State())
	assert.Zero(t, rec.count())

	require.NoError(t, s.Hangup())
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, StateEnded, rec.last().Status)
}

func TestDeclineIsTerminalWithoutDuration(t *testing.T) {
	mgr, _, rec := newTestManager(t)

	s, err := mgr.Initiate(uuid.New(), uuid.New(), realtime.CallAudio)
	require.NoError(t, err)
	require.NoError(t, s.OfferDelivered())
	require.NoError(t, s.Decline())

	assert.Equal(t, StateRejected, s.State())
	assert.ErrorIs(t, s.Answer(), ErrTerminal)
	require.Equal(t, 1, rec.count())
	assert.Nil(t, rec.last().DurationSeconds)
}

func TestSecondInitiateWhileActiveIsRejected(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	first, err := mgr.Initiate(uuid.New(), uuid.New(), realtime.CallAudio)
	require.NoError(t, err)

	_, err = mgr.Initiate(uuid.New(), uuid.New(), realtime.CallVideo)
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, first.Fail(nil))

	// Once the first session is terminal, a new one may start.
	second, err := mgr.Initiate(uuid.New(), uuid.New(), realtime.CallVideo)
	require.NoError(t, err)
	assert.Equal(t, StateInitiated, second.State())
}

func TestIncomingRingsAndTimesOut(t *testing.T) {
	mgr, clock, rec := newTestManager(t)

	sessionID := uuid.New()
	s, err := mgr.Incoming(sessionID, uuid.New(), uuid.New(), realtime.CallVideo)
	require.NoError(t, err)
	assert.Equal(t, StateRinging, s.State())
	assert.Equal(t, sessionID, s.ID())

	clock.Advance(31 * time.Second)
	assert.Equal(t, StateMissed, s.State())
	assert.Equal(t, sessionID, rec.last().SessionID)
}

func TestChannelClosedNeverLeavesSessionNonTerminal(t *testing.T) {
	mgr, clock, rec := newTestManager(t)

	// Mid-ringing: abrupt failure.
	s, err := mgr.Initiate(uuid.New(), uuid.New(), realtime.CallAudio)
	require.NoError(t, err)
	require.NoError(t, s.OfferDelivered())
	require.NoError(t, s.ChannelClosed())
	assert.Equal(t, StateFailed, s.State())

	// Mid-call: abrupt end, duration still recorded.
	s2, err := mgr.Initiate(uuid.New(), uuid.New(), realtime.CallAudio)
	require.NoError(t, err)
	require.NoError(t, s2.OfferDelivered())
	require.NoError(t, s2.Answer())
	clock.Advance(10 * time.Second)
	require.NoError(t, s2.ChannelClosed())
	assert.Equal(t, StateEnded, s2.State())

	require.Equal(t, 2, rec.count())
	require.NotNil(t, rec.last().DurationSeconds)
	assert.EqualValues(t, 10, *rec.last().DurationSeconds)

	// The stale ring timers stay quiet.
	clock.Advance(time.Hour)
	assert.Equal(t, 2, rec.count())
}

func TestInvalidTransitionsRejected(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	s, err := mgr.Initiate(uuid.New(), uuid.New(), realtime.CallAudio)
	require.NoError(t, err)

	var terr *TransitionError
	assert.ErrorAs(t, s.Answer(), &terr)
	assert.Equal(t, StateInitiated, terr.From)

	assert.Error(t, s.Hangup())
	assert.Equal(t, StateInitiated, s.State())
}

func TestStateHandlerObservesLifecycle(t *testing.T) {
	clock := newFakeClock()
	rec := &countingRecorder{}
	var mu sync.Mutex
	var seen []State
	mgr := NewManager(rec, Options{
		RingTimeout: 30 * time.Second,
		Clock:       clock,
		OnState: func(_ *Session, st State) {
			mu.Lock()
			seen = append(seen, st)
			mu.Unlock()
		},
	})

	s, err := mgr.Initiate(uuid.New(), uuid.New(), realtime.CallAudio)
	require.NoError(t, err)
	require.NoError(t, s.OfferDelivered())
	require.NoError(t, s.Answer())
	require.NoError(t, s.Hangup())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateRinging, StateConnected, StateEnded}, seen)
}
