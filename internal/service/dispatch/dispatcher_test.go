package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffdeck/realtime-api/internal/hub"
	"github.com/staffdeck/realtime-api/pkg/realtime"
)

type fakeBroker struct {
	frames chan []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{frames: make(chan []byte, 16)}
}

func (b *fakeBroker) Publish(_ context.Context, _ string, message interface{}) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return err
	}
	b.frames <- raw
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.frames, nil
}

func (b *fakeBroker) Close() error { return nil }

type fakeEmail struct {
	mu    sync.Mutex
	sends []string
}

func (e *fakeEmail) SendNotification(_ context.Context, to, _, _ string) error {
	e.mu.Lock()
	e.sends = append(e.sends, to)
	e.mu.Unlock()
	return nil
}

func (e *fakeEmail) sent() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sends...)
}

func notificationFrame(t *testing.T, userID uuid.UUID, email string, category realtime.Category) Routed {
	t.Helper()
	ev, err := realtime.NewEnvelope(realtime.EventNewNotification, realtime.Notification{
		ID:       uuid.New(),
		UserID:   userID,
		Title:    "Incoming call",
		Category: category,
	})
	require.NoError(t, err)
	return Routed{UserID: userID, Email: email, Event: ev}
}

func TestDispatchDeliversToConnectedUser(t *testing.T) {
	broker := newFakeBroker()
	h := hub.New(8, nil, nil)
	mail := &fakeEmail{}
	d := NewDispatcher(broker, h, mail, "realtime:events", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	userID := uuid.New()
	conn := h.Register(userID, nil)

	require.NoError(t, broker.Publish(ctx, "realtime:events", notificationFrame(t, userID, "a@b.c", realtime.CategoryCall)))

	select {
	case ev := <-conn.Out:
		assert.Equal(t, realtime.EventNewNotification, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("event never reached the connection")
	}
	assert.Empty(t, mail.sent(), "online delivery must not trigger email")
}

func TestDispatchFallsBackToEmailForUrgentOffline(t *testing.T) {
	broker := newFakeBroker()
	h := hub.New(8, nil, nil)
	mail := &fakeEmail{}
	d := NewDispatcher(broker, h, mail, "realtime:events", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.NoError(t, broker.Publish(ctx, "realtime:events", notificationFrame(t, uuid.New(), "offline@example.com", realtime.CategoryCall)))

	assert.Eventually(t, func() bool {
		return len(mail.sent()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"offline@example.com"}, mail.sent())
}

func TestDispatchSkipsEmailForRoutineCategories(t *testing.T) {
	broker := newFakeBroker()
	h := hub.New(8, nil, nil)
	mail := &fakeEmail{}
	d := NewDispatcher(broker, h, mail, "realtime:events", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.NoError(t, broker.Publish(ctx, "realtime:events", notificationFrame(t, uuid.New(), "offline@example.com", realtime.CategoryMessage)))
	// A second urgent frame marks the point where the first is consumed.
	require.NoError(t, broker.Publish(ctx, "realtime:events", notificationFrame(t, uuid.New(), "urgent@example.com", realtime.CategoryLeaveRequest)))

	assert.Eventually(t, func() bool {
		return len(mail.sent()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"urgent@example.com"}, mail.sent())
}

func TestDispatchBroadcast(t *testing.T) {
	broker := newFakeBroker()
	h := hub.New(8, nil, nil)
	d := NewDispatcher(broker, h, &fakeEmail{}, "realtime:events", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	connA := h.Register(uuid.New(), nil)
	connB := h.Register(uuid.New(), nil)

	ev, err := realtime.NewEnvelope(realtime.EventEmployeeStatusUpdate, realtime.StatusUpdatePayload{
		UserID: uuid.New(),
		Status: realtime.StatusOnline,
	})
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, "realtime:events", Routed{Broadcast: true, Event: ev}))

	for _, conn := range []*hub.Conn{connA, connB} {
		select {
		case got := <-conn.Out:
			assert.Equal(t, realtime.EventEmployeeStatusUpdate, got.Type)
		case <-time.After(time.Second):
			t.Fatal("broadcast never reached a connection")
		}
	}
}

func TestDispatchIgnoresMalformedFrames(t *testing.T) {
	broker := newFakeBroker()
	h := hub.New(8, nil, nil)
	mail := &fakeEmail{}
	d := NewDispatcher(broker, h, mail, "realtime:events", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	broker.frames <- []byte("{not json")

	userID := uuid.New()
	conn := h.Register(userID, nil)
	require.NoError(t, broker.Publish(ctx, "realtime:events", notificationFrame(t, userID, "", realtime.CategoryTask)))

	select {
	case ev := <-conn.Out:
		assert.Equal(t, realtime.EventNewNotification, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("dispatcher stopped after malformed frame")
	}
}
