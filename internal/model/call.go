package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/staffdeck/realtime-api/pkg/realtime"
)

// CallStatus is the final status of a logged call. Only terminal session
// states are ever persisted.
type CallStatus string

const (
	CallStatusEnded    CallStatus = "ended"
	CallStatusMissed   CallStatus = "missed"
	CallStatusRejected CallStatus = "rejected"
	CallStatusBusy     CallStatus = "busy"
	CallStatusFailed   CallStatus = "failed"
)

// ValidCallStatus reports whether s is a persistable terminal status.
func ValidCallStatus(s CallStatus) bool {
	switch s {
	case CallStatusEnded, CallStatusMissed, CallStatusRejected, CallStatusBusy, CallStatusFailed:
		return true
	}
	return false
}

// CallLog is one immutable call-history row, keyed by the client session id
// so replayed persistence calls stay idempotent.
type CallLog struct {
	SessionID       uuid.UUID         `db:"session_id" json:"session_id"`
	CallerID        uuid.UUID         `db:"caller_id" json:"caller_id"`
	ReceiverID      uuid.UUID         `db:"receiver_id" json:"receiver_id"`
	Kind            realtime.CallKind `db:"kind" json:"kind"`
	Status          CallStatus        `db:"status" json:"status"`
	StartedAt       time.Time         `db:"started_at" json:"started_at"`
	EndedAt         *time.Time        `db:"ended_at" json:"ended_at,omitempty"`
	DurationSeconds *int64            `db:"duration_seconds" json:"duration_seconds,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
}
