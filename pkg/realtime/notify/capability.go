package notify

import "github.com/staffdeck/realtime-api/pkg/realtime"

// Permission is the desktop notification permission state.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Alert is a displayable desktop notification. Tag equals the notification
// id so a second delivery of the same id replaces rather than stacks.
type Alert struct {
	Title string
	Body  string
	Tag   string
	// Target is handed to the click handler for navigation.
	Target string
	// RequireInteraction keeps the alert on screen until the user acts.
	RequireInteraction bool
	// Vibration is an on/off millisecond pattern.
	Vibration []int
}

// Notifier abstracts the platform notification surface so the policy logic
// is testable without one. Implementations should prefer a
// background-capable channel and fall back to a foreground-only one.
type Notifier interface {
	IsSupported() bool
	Permission() Permission
	Show(alert Alert) error
}

// Sounder plays the audible cue for a category. The four categories must be
// audibly distinguishable and call must use a repeating ring pattern.
type Sounder interface {
	PlayTone(category realtime.Category)
}

// Preferences exposes the persisted user settings the presenter honors.
type Preferences interface {
	SoundEnabled() bool
}

// NopNotifier discards alerts; used headless and in tests.
type NopNotifier struct{}

func (NopNotifier) IsSupported() bool      { return false }
func (NopNotifier) Permission() Permission { return PermissionDenied }
func (NopNotifier) Show(Alert) error       { return nil }

// NopSounder discards tones.
type NopSounder struct{}

func (NopSounder) PlayTone(realtime.Category) {}

// StaticPreferences is a fixed Preferences value.
type StaticPreferences struct {
	Sound bool
}

func (p StaticPreferences) SoundEnabled() bool { return p.Sound }
