package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound event kinds accepted from clients. Each kind maps to exactly one
// typed payload; anything else is rejected at the boundary before dispatch.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventMarkMessagesRead  = "mark_messages_read"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventJoinSession       = "join_session"
	EventLeaveSession      = "leave_session"
	EventSessionUpdate     = "session_update"
	EventNotificationRead  = "notification_read"
	EventShareMeetingLink  = "share_meeting_link"
	EventRequestReschedule = "request_reschedule"
	EventGetOnlineUsers    = "get_online_users"
)

// Outbound event names pushed to clients.
const (
	EventUserOnline              = "user_online"
	EventUserOffline             = "user_offline"
	EventNewMessage              = "new_message"
	EventMessageSent             = "message_sent"
	EventMessageNotification     = "message_notification"
	EventMessagesRead            = "messages_read"
	EventUserTyping              = "user_typing"
	EventUserStoppedTyping       = "user_stopped_typing"
	EventSessionUpdated          = "session_updated"
	EventSessionRescheduleReq    = "session_reschedule_request"
	EventMeetingLinkShared       = "meeting_link_shared"
	EventMeetingLinkNotification = "meeting_link_notification"
	EventNotification            = "notification"
	EventOnlineUsers             = "online_users"
	EventMessageError            = "message_error"
	EventMeetingLinkError        = "meeting_link_error"
	EventRescheduleError         = "reschedule_error"
)

// Envelope is the wire frame for every outbound event.
type Envelope struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// InboundEvent is the decoded but not yet payload-parsed client frame.
type InboundEvent struct {
	Kind    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ConversationPayload addresses the other side of a 1:1 conversation.
// Used by join/leave_conversation, mark_messages_read and typing events.
type ConversationPayload struct {
	OtherUserID string `json:"other_user_id"`
}

// SendMessagePayload carries a send_message request.
type SendMessagePayload struct {
	RecipientID string  `json:"recipient_id"`
	Content     string  `json:"content"`
	MessageType string  `json:"message_type"`
	ReplyTo     *string `json:"reply_to,omitempty"`
}

// SessionPayload addresses a session-scoped room.
type SessionPayload struct {
	SessionID string `json:"session_id"`
}

// SessionUpdatePayload resolves or annotates a session from a live client.
type SessionUpdatePayload struct {
	SessionID string                 `json:"session_id"`
	Status    string                 `json:"status"`
	Update    map[string]interface{} `json:"update,omitempty"`
}

// NotificationReadPayload acknowledges a durable notification.
type NotificationReadPayload struct {
	NotificationID string `json:"notification_id"`
}

// ShareMeetingLinkPayload carries a share_meeting_link request.
type ShareMeetingLinkPayload struct {
	RecipientID   string     `json:"recipient_id"`
	MeetingLink   string     `json:"meeting_link"`
	SessionID     *string    `json:"session_id,omitempty"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
}

// RequestReschedulePayload proposes a new time for a booked session.
type RequestReschedulePayload struct {
	SessionID   string    `json:"session_id"`
	NewDate     time.Time `json:"new_date"`
	Reason      string    `json:"reason"`
	RecipientID string    `json:"recipient_id,omitempty"`
}

// validInboundKinds is the closed set of accepted client event kinds.
var validInboundKinds = map[string]bool{
	EventJoinConversation:  true,
	EventLeaveConversation: true,
	EventSendMessage:       true,
	EventMarkMessagesRead:  true,
	EventTypingStart:       true,
	EventTypingStop:        true,
	EventJoinSession:       true,
	EventLeaveSession:      true,
	EventSessionUpdate:     true,
	EventNotificationRead:  true,
	EventShareMeetingLink:  true,
	EventRequestReschedule: true,
	EventGetOnlineUsers:    true,
}

// DecodeInbound parses a raw client frame and validates the event kind.
// Payload parsing is deferred to ParsePayload so dispatch can stay typed.
func DecodeInbound(data []byte) (*InboundEvent, error) {
	var ev InboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !validInboundKinds[ev.Kind] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEventKind, ev.Kind)
	}
	return &ev, nil
}

// ParsePayload unmarshals the raw payload into the typed struct for the
// event kind. dst must match the kind; a decode failure is a client error.
func (e *InboundEvent) ParsePayload(dst interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty payload for %s", ErrInvalidPayload, e.Kind)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// NewEnvelope stamps an outbound frame.
func NewEnvelope(event string, payload interface{}) *Envelope {
	return &Envelope{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
