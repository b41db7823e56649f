package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names an event flowing over the realtime channel. The payload
// shape is fixed per type.
type EventType string

const (
	EventSubscribe            EventType = "subscribe"
	EventNewNotification      EventType = "new_notification"
	EventNewMessage           EventType = "new_message"
	EventMessageDeleted       EventType = "message_deleted"
	EventReactionRemoved      EventType = "reaction_removed"
	EventAuxStatusUpdate      EventType = "aux_status_update"
	EventEmployeeStatusUpdate EventType = "employee_status_update"
	EventNewMeeting           EventType = "new_meeting"
	EventCallOffer            EventType = "call_offer"
	EventCallAnswer           EventType = "call_answer"
	EventICECandidate         EventType = "ice_candidate"
	EventCallEnd              EventType = "call_end"
	EventCallDecline          EventType = "call_decline"
)

// Envelope is the wire frame carried over the websocket channel.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope wraps a payload into an envelope of the given type.
func NewEnvelope(t EventType, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Payload: raw}, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e Envelope) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("empty %s payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// IsCallSignal reports whether the event belongs to the call signaling
// vocabulary (relayed peer-to-peer, never fanned out).
func (e Envelope) IsCallSignal() bool {
	switch e.Type {
	case EventCallOffer, EventCallAnswer, EventICECandidate, EventCallEnd, EventCallDecline:
		return true
	}
	return false
}

// SubscribePayload is the identity handshake a client sends as its first
// frame after connecting, and again after every reconnect.
type SubscribePayload struct {
	UserID uuid.UUID `json:"user_id"`
}

// MessagePayload accompanies new_message events.
type MessagePayload struct {
	RoomID    string    `json:"room_id"`
	MessageID string    `json:"message_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

// MessageDeletedPayload accompanies message_deleted events.
type MessageDeletedPayload struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
}

// ReactionRemovedPayload accompanies reaction_removed events.
type ReactionRemovedPayload struct {
	RoomID    string    `json:"room_id"`
	MessageID string    `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Reaction  string    `json:"reaction"`
}

// StatusUpdatePayload accompanies aux_status_update and
// employee_status_update events.
type StatusUpdatePayload struct {
	UserID uuid.UUID `json:"user_id"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// MeetingPayload accompanies new_meeting events.
type MeetingPayload struct {
	MeetingID   string    `json:"meeting_id"`
	Title       string    `json:"title"`
	OrganizerID uuid.UUID `json:"organizer_id"`
	StartsAt    time.Time `json:"starts_at"`
}

// CallKind distinguishes audio from video calls.
type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

// CallSignal is the payload for all call signaling events. SDP and ICE
// candidate contents are opaque to this service and relayed verbatim.
type CallSignal struct {
	SessionID uuid.UUID       `json:"session_id"`
	From      uuid.UUID       `json:"from"`
	To        uuid.UUID       `json:"to"`
	Kind      CallKind        `json:"kind,omitempty"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// Decline/end reasons set by the gateway rather than a peer.
const (
	ReasonOffline  = "offline"
	ReasonPeerGone = "peer_gone"
)
