package notify

import (
	"time"

	"github.com/staffdeck/realtime-api/pkg/realtime"
)

// TonePattern describes a synthesized cue: a base frequency, beep/pause
// durations, and whether the pattern repeats until dismissed. Tones are
// generated programmatically so no audio assets ship with the client.
type TonePattern struct {
	FrequencyHz int
	// Beats alternates beep and pause durations, starting with a beep.
	Beats  []time.Duration
	Repeat bool
}

// Tone returns the pattern for a category. Each category is audibly
// distinct; call repeats like a ringtone.
func Tone(category realtime.Category) TonePattern {
	switch category {
	case realtime.CategoryMessage:
		// Short double beep.
		return TonePattern{
			FrequencyHz: 880,
			Beats:       []time.Duration{120 * time.Millisecond, 80 * time.Millisecond, 120 * time.Millisecond},
		}
	case realtime.CategoryCall:
		// Ring-ring, pause, repeat.
		return TonePattern{
			FrequencyHz: 440,
			Beats: []time.Duration{
				400 * time.Millisecond, 200 * time.Millisecond,
				400 * time.Millisecond, 1200 * time.Millisecond,
			},
			Repeat: true,
		}
	case realtime.CategoryTask:
		// Single mid tone.
		return TonePattern{
			FrequencyHz: 660,
			Beats:       []time.Duration{200 * time.Millisecond},
		}
	default:
		// system, leave_request and anything new: soft low chime.
		return TonePattern{
			FrequencyHz: 520,
			Beats:       []time.Duration{300 * time.Millisecond},
		}
	}
}

// Vibration returns the on/off millisecond pattern attached to desktop
// alerts for a category.
func Vibration(category realtime.Category) []int {
	if category == realtime.CategoryCall {
		return []int{300, 100, 300, 100, 300}
	}
	return []int{200}
}
