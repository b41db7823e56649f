package notify

import (
	"github.com/rs/zerolog"

	"github.com/staffdeck/realtime-api/pkg/realtime"
	"github.com/staffdeck/realtime-api/pkg/realtime/dedup"
)

// Presenter runs the full presentation pipeline for inbound notifications:
// de-duplication, the policy decision, then the sound and desktop surfaces.
// Permission problems degrade delivery (sound-only or silent), never error.
type Presenter struct {
	dedup    *dedup.Deduplicator
	notifier Notifier
	sounder  Sounder
	prefs    Preferences
	log      zerolog.Logger
}

// NewPresenter wires a presenter. Nil notifier/sounder fall back to no-ops.
func NewPresenter(d *dedup.Deduplicator, notifier Notifier, sounder Sounder, prefs Preferences, logger *zerolog.Logger) *Presenter {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if sounder == nil {
		sounder = NopSounder{}
	}
	if prefs == nil {
		prefs = StaticPreferences{Sound: true}
	}
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "presenter").Logger()
	}
	return &Presenter{dedup: d, notifier: notifier, sounder: sounder, prefs: prefs, log: log}
}

// Present surfaces one notification and returns the decision applied. A
// duplicate within the dedup window returns a zero Decision untouched.
func (p *Presenter) Present(n realtime.Notification, view ViewContext) Decision {
	if p.dedup != nil && !p.dedup.ShouldProcess(n.ID.String()) {
		p.log.Debug().Str("notification_id", n.ID.String()).Msg("duplicate suppressed")
		return Decision{}
	}

	d := Decide(n, view)

	if d.PlaySound && p.prefs.SoundEnabled() {
		p.sounder.PlayTone(n.Category)
	}

	if d.ShowDesktop {
		p.show(n, d)
	}
	return d
}

func (p *Presenter) show(n realtime.Notification, d Decision) {
	if !p.notifier.IsSupported() {
		return
	}
	if p.notifier.Permission() != PermissionGranted {
		// Denied or undecided permission degrades to sound-only.
		p.log.Debug().Str("notification_id", n.ID.String()).Msg("notification permission not granted")
		return
	}
	alert := Alert{
		Title:              n.Title,
		Body:               n.Body,
		Tag:                n.ID.String(),
		Target:             d.Target,
		RequireInteraction: d.Sticky,
		Vibration:          Vibration(n.Category),
	}
	if err := p.notifier.Show(alert); err != nil {
		p.log.Warn().Err(err).Str("notification_id", n.ID.String()).Msg("failed to show notification")
	}
}
