// Package autoread reconciles unread notifications with views the user is
// already looking at, acknowledging them without explicit user action.
package autoread

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/staffdeck/realtime-api/pkg/realtime"
	"github.com/staffdeck/realtime-api/pkg/realtime/notify"
)

// Acknowledger marks notifications read on the server. Both operations are
// idempotent: re-marking an already-read notification is a harmless no-op.
type Acknowledger interface {
	MarkRead(ctx context.Context, id uuid.UUID) error
	MarkReadBatch(ctx context.Context, ids []uuid.UUID) error
}

// Coordinator issues the acknowledge calls for eligible notifications.
type Coordinator struct {
	ack Acknowledger
	log zerolog.Logger
}

// NewCoordinator builds a coordinator over the given acknowledger.
func NewCoordinator(ack Acknowledger, logger *zerolog.Logger) *Coordinator {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "autoread").Logger()
	}
	return &Coordinator{ack: ack, log: log}
}

// Eligible computes which unread notifications count as already seen for
// the current view. Read notifications are never returned.
func Eligible(view notify.ViewContext, notifications []realtime.Notification) []uuid.UUID {
	var ids []uuid.UUID
	for _, n := range notifications {
		if n.Read {
			continue
		}
		if seenInView(view, n) {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func seenInView(view notify.ViewContext, n realtime.Notification) bool {
	switch view.Route {
	case notify.RouteChat:
		return n.Category == realtime.CategoryMessage &&
			view.RoomID != "" && n.RoomID() == view.RoomID
	case notify.RouteTasks:
		if n.Category != realtime.CategoryTask {
			return false
		}
		// List view clears all task notifications; a selected task only
		// clears its own.
		return view.TaskID == "" || n.TaskID() == view.TaskID
	case notify.RouteCalls:
		return n.Category == realtime.CategoryCall
	case notify.RouteHR:
		return n.Category == realtime.CategoryLeaveRequest
	}
	return false
}

// Reconcile acknowledges every eligible notification. Multiple ids go out
// as a single batch; if the batch endpoint fails, each id is acknowledged
// independently so one failure never blocks or drops the others. Call it
// again whenever the view or the notification set changes.
func (c *Coordinator) Reconcile(ctx context.Context, view notify.ViewContext, notifications []realtime.Notification) error {
	ids := Eligible(view, notifications)
	if len(ids) == 0 {
		return nil
	}

	if len(ids) == 1 {
		if err := c.ack.MarkRead(ctx, ids[0]); err != nil {
			return fmt.Errorf("failed to mark notification read: %w", err)
		}
		return nil
	}

	err := c.ack.MarkReadBatch(ctx, ids)
	if err == nil {
		return nil
	}
	c.log.Warn().Err(err).Int("count", len(ids)).Msg("batch acknowledge failed, falling back to per-id")

	// Settle every id and collect failures rather than failing fast.
	var errs []error
	for _, id := range ids {
		if err := c.ack.MarkRead(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("notification %s: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to acknowledge %d of %d notifications: %w", len(errs), len(ids), errors.Join(errs...))
	}
	return nil
}
