// Package notify decides how an incoming notification is surfaced: audible
// cue, desktop alert, both, or nothing, based on page visibility and what
// the user is already looking at.
package notify

import (
	"net/url"

	"github.com/staffdeck/realtime-api/pkg/realtime"
)

// View routes the client understands.
const (
	RouteChat      = "/chat"
	RouteTasks     = "/tasks"
	RouteCalls     = "/calls"
	RouteHR        = "/hr"
	RouteDashboard = "/dashboard"
)

// ViewContext is the client's current navigation state.
type ViewContext struct {
	// Visible is false when the tab/window is hidden or unfocused.
	Visible bool
	// Route is the current view, e.g. RouteChat.
	Route string
	// RoomID is the open chat room when Route is RouteChat.
	RoomID string
	// TaskID is the selected task when Route is RouteTasks, empty when
	// the list view is open.
	TaskID string
}

// Decision is the presentation verdict for one notification.
type Decision struct {
	ShowDesktop bool
	PlaySound   bool
	// Sticky requests persistent on-screen presence until the user acts.
	Sticky bool
	// Target is the view to navigate to when the alert is activated.
	Target string
}

// Decide applies the presentation decision table. The sound verdict here is
// policy only; the persisted sound preference is applied by the Presenter.
func Decide(n realtime.Notification, view ViewContext) Decision {
	d := Decision{
		ShowDesktop: true,
		PlaySound:   true,
		Sticky:      n.Category == realtime.CategoryCall,
		Target:      Target(n),
	}

	// Hidden page: always surface, whatever the category.
	if !view.Visible {
		return d
	}

	switch n.Category {
	case realtime.CategoryMessage:
		// Already looking at that exact room: nothing to announce.
		if view.Route == RouteChat && view.RoomID != "" && view.RoomID == n.RoomID() {
			d.ShowDesktop = false
			d.PlaySound = false
		}
	case realtime.CategoryTask:
		if view.Route == RouteTasks {
			d.ShowDesktop = false
			d.PlaySound = false
		}
	case realtime.CategoryCall:
		// Calls always ring, visible or not.
	}
	return d
}

// Target derives the navigation destination for a notification
// deterministically from its category and metadata.
func Target(n realtime.Notification) string {
	switch n.Category {
	case realtime.CategoryMessage:
		q := url.Values{}
		if n.RoomID() != "" {
			q.Set("roomId", n.RoomID())
		}
		if n.MessageID() != "" {
			q.Set("messageId", n.MessageID())
		}
		if len(q) == 0 {
			return RouteChat
		}
		return RouteChat + "?" + q.Encode()
	case realtime.CategoryTask:
		if n.TaskID() != "" {
			return RouteTasks + "?" + url.Values{"taskId": {n.TaskID()}}.Encode()
		}
		return RouteTasks
	case realtime.CategoryCall:
		return RouteCalls
	case realtime.CategoryLeaveRequest:
		return RouteHR
	default:
		return RouteDashboard
	}
}
