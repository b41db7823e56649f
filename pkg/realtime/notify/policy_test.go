package notify

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/staffdeck/realtime-api/pkg/realtime"
	"github.com/staffdeck/realtime-api/pkg/realtime/dedup"
)

func notification(cat realtime.Category, meta map[string]string) realtime.Notification {
	return realtime.Notification{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Title:     "title",
		Body:      "body",
		Category:  cat,
		Metadata:  meta,
		CreatedAt: time.Now(),
	}
}

func TestHiddenPageAlwaysSurfaces(t *testing.T) {
	hidden := ViewContext{Visible: false, Route: RouteChat, RoomID: "42"}

	for _, cat := range []realtime.Category{
		realtime.CategoryMessage,
		realtime.CategoryTask,
		realtime.CategoryCall,
		realtime.CategoryLeaveRequest,
		realtime.CategorySystem,
	} {
		d := Decide(notification(cat, map[string]string{realtime.MetaRoomID: "42"}), hidden)
		assert.True(t, d.ShowDesktop, "category %s should show on hidden page", cat)
		assert.True(t, d.PlaySound, "category %s should play on hidden page", cat)
	}
}

func TestMessageInOpenRoomIsSuppressed(t *testing.T) {
	view := ViewContext{Visible: true, Route: RouteChat, RoomID: "42"}

	same := Decide(notification(realtime.CategoryMessage, map[string]string{realtime.MetaRoomID: "42"}), view)
	assert.False(t, same.ShowDesktop)
	assert.False(t, same.PlaySound)

	other := Decide(notification(realtime.CategoryMessage, map[string]string{realtime.MetaRoomID: "7"}), view)
	assert.True(t, other.ShowDesktop)
	assert.True(t, other.PlaySound)

	elsewhere := Decide(notification(realtime.CategoryMessage, map[string]string{realtime.MetaRoomID: "42"}),
		ViewContext{Visible: true, Route: RouteTasks})
	assert.True(t, elsewhere.ShowDesktop)
	assert.True(t, elsewhere.PlaySound)
}

func TestTaskOnTasksViewIsSuppressed(t *testing.T) {
	onTasks := Decide(notification(realtime.CategoryTask, nil), ViewContext{Visible: true, Route: RouteTasks})
	assert.False(t, onTasks.ShowDesktop)
	assert.False(t, onTasks.PlaySound)

	elsewhere := Decide(notification(realtime.CategoryTask, nil), ViewContext{Visible: true, Route: RouteDashboard})
	assert.True(t, elsewhere.ShowDesktop)
	assert.True(t, elsewhere.PlaySound)
}

func TestCallAlwaysRingsAndSticks(t *testing.T) {
	d := Decide(notification(realtime.CategoryCall, nil), ViewContext{Visible: true, Route: RouteCalls})
	assert.True(t, d.ShowDesktop)
	assert.True(t, d.PlaySound)
	assert.True(t, d.Sticky)
}

func TestTargetDerivation(t *testing.T) {
	cases := []struct {
		name string
		n    realtime.Notification
		want string
	}{
		{
			name: "message with room and message id",
			n: notification(realtime.CategoryMessage, map[string]string{
				realtime.MetaRoomID:    "42",
				realtime.MetaMessageID: "m-9",
			}),
			want: "/chat?messageId=m-9&roomId=42",
		},
		{
			name: "message without metadata",
			n:    notification(realtime.CategoryMessage, nil),
			want: "/chat",
		},
		{
			name: "task with id",
			n:    notification(realtime.CategoryTask, map[string]string{realtime.MetaTaskID: "t-3"}),
			want: "/tasks?taskId=t-3",
		},
		{
			name: "call",
			n:    notification(realtime.CategoryCall, nil),
			want: "/calls",
		},
		{
			name: "leave request",
			n:    notification(realtime.CategoryLeaveRequest, nil),
			want: "/hr",
		},
		{
			name: "system falls back to dashboard",
			n:    notification(realtime.CategorySystem, nil),
			want: "/dashboard",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Target(tc.n))
		})
	}
}

func TestTonesAreDistinctAndCallRepeats(t *testing.T) {
	seen := map[int]realtime.Category{}
	for _, cat := range []realtime.Category{
		realtime.CategoryMessage,
		realtime.CategoryTask,
		realtime.CategoryCall,
		realtime.CategorySystem,
	} {
		tone := Tone(cat)
		if prev, dup := seen[tone.FrequencyHz]; dup {
			t.Fatalf("categories %s and %s share frequency %d", prev, cat, tone.FrequencyHz)
		}
		seen[tone.FrequencyHz] = cat
	}
	assert.True(t, Tone(realtime.CategoryCall).Repeat, "call tone must repeat")
	assert.False(t, Tone(realtime.CategoryMessage).Repeat)
}

// recordingNotifier captures shown alerts.
type recordingNotifier struct {
	perm   Permission
	alerts []Alert
}

func (n *recordingNotifier) IsSupported() bool      { return true }
func (n *recordingNotifier) Permission() Permission { return n.perm }
func (n *recordingNotifier) Show(a Alert) error     { n.alerts = append(n.alerts, a); return nil }

type recordingSounder struct {
	tones []realtime.Category
}

func (s *recordingSounder) PlayTone(c realtime.Category) { s.tones = append(s.tones, c) }

func TestPresenterSuppressesDuplicates(t *testing.T) {
	notifier := &recordingNotifier{perm: PermissionGranted}
	sounder := &recordingSounder{}
	p := NewPresenter(dedup.New(time.Minute, time.Minute), notifier, sounder, nil, nil)

	n := notification(realtime.CategoryMessage, map[string]string{realtime.MetaRoomID: "7"})
	view := ViewContext{Visible: false}

	first := p.Present(n, view)
	assert.True(t, first.ShowDesktop)

	second := p.Present(n, view)
	assert.Equal(t, Decision{}, second, "same id within the window must be silent")

	assert.Len(t, notifier.alerts, 1)
	assert.Len(t, sounder.tones, 1)
	assert.Equal(t, n.ID.String(), notifier.alerts[0].Tag)
}

func TestPresenterHonorsSoundPreference(t *testing.T) {
	notifier := &recordingNotifier{perm: PermissionGranted}
	sounder := &recordingSounder{}
	p := NewPresenter(dedup.New(time.Minute, time.Minute), notifier, sounder,
		StaticPreferences{Sound: false}, nil)

	p.Present(notification(realtime.CategoryCall, nil), ViewContext{Visible: true})

	assert.Empty(t, sounder.tones, "sound disabled preference must mute the cue")
	assert.Len(t, notifier.alerts, 1, "desktop alert is unaffected by the sound preference")
	assert.True(t, notifier.alerts[0].RequireInteraction)
	assert.Equal(t, []int{300, 100, 300, 100, 300}, notifier.alerts[0].Vibration)
}

func TestPresenterDegradesWithoutPermission(t *testing.T) {
	notifier := &recordingNotifier{perm: PermissionDenied}
	sounder := &recordingSounder{}
	p := NewPresenter(dedup.New(time.Minute, time.Minute), notifier, sounder, nil, nil)

	d := p.Present(notification(realtime.CategoryTask, nil), ViewContext{Visible: false})

	assert.True(t, d.ShowDesktop, "decision still requests a desktop alert")
	assert.Empty(t, notifier.alerts, "denied permission degrades to sound-only")
	assert.Equal(t, []realtime.Category{realtime.CategoryTask}, sounder.tones)
}
