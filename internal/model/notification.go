package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/staffdeck/realtime-api/pkg/realtime"
)

// Metadata is the free-form notification metadata map, stored as jsonb.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	return json.Unmarshal(b, m)
}

// Notification is the persisted notification row. Clients mutate it only
// through the one-way read flag transition.
type Notification struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	UserID    uuid.UUID         `db:"user_id" json:"user_id"`
	Title     string            `db:"title" json:"title"`
	Body      string            `db:"body" json:"body"`
	Category  realtime.Category `db:"category" json:"category"`
	Read      bool              `db:"read" json:"read"`
	Metadata  Metadata          `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}

// Payload converts the row into its wire representation.
func (n *Notification) Payload() realtime.Notification {
	return realtime.Notification{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Body:      n.Body,
		Category:  n.Category,
		Read:      n.Read,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt,
	}
}

// ValidCategory reports whether c belongs to the fixed category vocabulary.
func ValidCategory(c realtime.Category) bool {
	switch c {
	case realtime.CategoryMessage, realtime.CategoryTask, realtime.CategoryCall,
		realtime.CategoryLeaveRequest, realtime.CategorySystem:
		return true
	}
	return false
}
