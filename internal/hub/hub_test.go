package hub

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffdeck/realtime-api/pkg/realtime"
)

type presenceLog struct {
	mu     sync.Mutex
	events []string
}

func (p *presenceLog) record(userID uuid.UUID, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := "offline"
	if online {
		state = "online"
	}
	p.events = append(p.events, state)
}

func (p *presenceLog) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func envelope(t *testing.T, typ realtime.EventType) realtime.Envelope {
	t.Helper()
	ev, err := realtime.NewEnvelope(typ, map[string]string{})
	require.NoError(t, err)
	return ev
}

func TestRegisterReplacesExistingConnection(t *testing.T) {
	p := &presenceLog{}
	h := New(4, p.record, nil)
	userID := uuid.New()

	first := h.Register(userID, nil)
	second := h.Register(userID, nil)

	assert.Equal(t, 1, h.Len(), "one connection per user")
	select {
	case <-first.Done():
	default:
		t.Fatal("replaced connection must be closed")
	}

	// Replacement is not an offline/online flap.
	assert.Equal(t, []string{"online"}, p.all())

	h.Unregister(second)
	assert.Equal(t, []string{"online", "offline"}, p.all())
	assert.Zero(t, h.Len())
}

func TestUnregisterOfReplacedConnIsIgnored(t *testing.T) {
	p := &presenceLog{}
	h := New(4, p.record, nil)
	userID := uuid.New()

	old := h.Register(userID, nil)
	h.Register(userID, nil)

	// The old read pump exiting must not kick the fresh connection out.
	h.Unregister(old)
	assert.True(t, h.IsOnline(userID))
	assert.Equal(t, []string{"online"}, p.all())
}

func TestSendToUserDeliversInOrder(t *testing.T) {
	h := New(8, nil, nil)
	userID := uuid.New()
	c := h.Register(userID, nil)

	want := []realtime.EventType{
		realtime.EventNewNotification,
		realtime.EventNewMessage,
		realtime.EventNewMeeting,
	}
	for _, typ := range want {
		assert.True(t, h.SendToUser(userID, envelope(t, typ)))
	}

	for _, typ := range want {
		got := <-c.Out
		assert.Equal(t, typ, got.Type)
	}
}

func TestSendToOfflineUserReportsFalse(t *testing.T) {
	h := New(4, nil, nil)
	assert.False(t, h.SendToUser(uuid.New(), envelope(t, realtime.EventNewMessage)))
}

func TestFullQueueDropsConnection(t *testing.T) {
	h := New(2, nil, nil)
	userID := uuid.New()
	h.Register(userID, nil)

	ev := envelope(t, realtime.EventNewMessage)
	assert.True(t, h.SendToUser(userID, ev))
	assert.True(t, h.SendToUser(userID, ev))
	// Third enqueue overflows the queue of two.
	assert.False(t, h.SendToUser(userID, ev))
	assert.False(t, h.IsOnline(userID), "a client that cannot keep up is dropped")
}

func TestBroadcastReachesEveryUser(t *testing.T) {
	h := New(4, nil, nil)
	a := h.Register(uuid.New(), nil)
	b := h.Register(uuid.New(), nil)

	h.Broadcast(envelope(t, realtime.EventEmployeeStatusUpdate))

	assert.Len(t, a.Out, 1)
	assert.Len(t, b.Out, 1)
}

func TestCloseAll(t *testing.T) {
	h := New(4, nil, nil)
	c := h.Register(uuid.New(), nil)
	h.Register(uuid.New(), nil)

	h.CloseAll()
	assert.Zero(t, h.Len())
	select {
	case <-c.Done():
	default:
		t.Fatal("connections must be closed on shutdown")
	}
}
