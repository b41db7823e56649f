// Package dispatch consumes the shared event channel and routes each event
// to its recipient's live connection, falling back to email for urgent
// categories when the recipient is offline.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/staffdeck/realtime-api/internal/email"
	"github.com/staffdeck/realtime-api/internal/hub"
	"github.com/staffdeck/realtime-api/pkg/messaging"
	"github.com/staffdeck/realtime-api/pkg/metrics"
	"github.com/staffdeck/realtime-api/pkg/realtime"
)

// Routed is the frame published to the event channel. Every gateway
// instance subscribes, so events reach users regardless of which instance
// holds their connection.
type Routed struct {
	// UserID is the recipient. Ignored when Broadcast is set.
	UserID uuid.UUID `json:"user_id,omitempty"`
	// Email, when present, enables the offline fallback.
	Email     string            `json:"email,omitempty"`
	Broadcast bool              `json:"broadcast,omitempty"`
	Event     realtime.Envelope `json:"event"`
}

type Dispatcher struct {
	broker  messaging.Broker
	hub     *hub.Hub
	email   email.Service
	channel string
	logger  zerolog.Logger
}

func NewDispatcher(broker messaging.Broker, h *hub.Hub, emailSvc email.Service, channel string, logger *zerolog.Logger) *Dispatcher {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "dispatcher").Logger()
	}
	return &Dispatcher{
		broker:  broker,
		hub:     h,
		email:   emailSvc,
		channel: channel,
		logger:  log,
	}
}

// Run consumes the event channel until ctx is cancelled or the
// subscription closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	msgs, err := d.broker.Subscribe(ctx, d.channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", d.channel, err)
	}

	d.logger.Info().Str("channel", d.channel).Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-msgs:
			if !ok {
				return fmt.Errorf("event channel %s closed", d.channel)
			}
			d.dispatch(ctx, raw)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, raw []byte) {
	var r Routed
	if err := json.Unmarshal(raw, &r); err != nil {
		d.logger.Warn().Err(err).Msg("dropping malformed event frame")
		return
	}

	if r.Broadcast {
		d.hub.Broadcast(r.Event)
		metrics.EventsFannedOut.WithLabelValues(string(r.Event.Type)).Inc()
		return
	}

	if d.hub.SendToUser(r.UserID, r.Event) {
		metrics.EventsFannedOut.WithLabelValues(string(r.Event.Type)).Inc()
		return
	}

	d.fallback(ctx, r)
}

// fallback mails urgent notifications to recipients without a live
// connection. Everything else waits in the notification store until the
// next fetch.
func (d *Dispatcher) fallback(ctx context.Context, r Routed) {
	if r.Event.Type != realtime.EventNewNotification || r.Email == "" {
		return
	}

	var n realtime.Notification
	if err := r.Event.DecodePayload(&n); err != nil {
		d.logger.Warn().Err(err).Msg("cannot decode notification for email fallback")
		return
	}
	if n.Category != realtime.CategoryCall && n.Category != realtime.CategoryLeaveRequest {
		return
	}

	if err := d.email.SendNotification(ctx, r.Email, n.Title, n.Body); err != nil {
		d.logger.Error().Err(err).
			Str("user_id", r.UserID.String()).
			Str("category", string(n.Category)).
			Msg("email fallback failed")
		return
	}
	metrics.EmailFallbacks.Inc()
}
