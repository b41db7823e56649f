package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies a notification for presentation and read-state
// reconciliation.
type Category string

const (
	CategoryMessage      Category = "message"
	CategoryTask         Category = "task"
	CategoryCall         Category = "call"
	CategoryLeaveRequest Category = "leave_request"
	CategorySystem       Category = "system"
)

// Metadata keys a notification may carry.
const (
	MetaRoomID    = "room_id"
	MetaTaskID    = "task_id"
	MetaMessageID = "message_id"
)

// Notification is the user-directed message delivered as the payload of
// new_notification events. The read flag transitions one way only.
type Notification struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Category  Category          `json:"category"`
	Read      bool              `json:"read"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func (n Notification) meta(key string) string {
	if n.Metadata == nil {
		return ""
	}
	return n.Metadata[key]
}

// RoomID returns the chat room reference carried in metadata, if any.
func (n Notification) RoomID() string { return n.meta(MetaRoomID) }

// TaskID returns the task reference carried in metadata, if any.
func (n Notification) TaskID() string { return n.meta(MetaTaskID) }

// MessageID returns the message reference carried in metadata, if any.
func (n Notification) MessageID() string { return n.meta(MetaMessageID) }
