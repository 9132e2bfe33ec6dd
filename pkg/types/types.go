package types

import (
	"time"
)

// Message type constants. A conversation carries plain text messages and
// synthesized meeting-link messages; nothing else enters the pipeline.
const (
	MessageTypeText        = "text"
	MessageTypeMeetingLink = "meeting_link"
)

// Notification type constants.
const (
	NotificationNewMessage         = "new_message"
	NotificationSessionRequest     = "session_request"
	NotificationSessionConfirmed   = "session_confirmed"
	NotificationSessionRescheduled = "session_rescheduled"
	NotificationSystemAnnouncement = "system_announcement"
)

// Notification delivery channels.
const (
	ChannelInApp = "in_app"
	ChannelPush  = "push"
	ChannelEmail = "email"
)

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Negotiation statuses for a pending reschedule request.
const (
	NegotiationProposed = "proposed"
	NegotiationAccepted = "accepted"
	NegotiationDeclined = "declined"
	NegotiationExpired  = "expired"
)

// User is the directory view of a platform account. The hub only reads
// users; account CRUD lives outside this process.
type User struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Email  string `json:"email" db:"email"`
	Active bool   `json:"active" db:"active"`
}

// UserSummary is the presence-annotated shape returned to clients asking
// who is online.
type UserSummary struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// Message is a persisted direct message between two users.
// Immutable after creation except for the read flag and its timestamp.
type Message struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"sender_id"`
	RecipientID string     `json:"recipient_id"`
	Content     string     `json:"content"`
	Type        string     `json:"type"`
	ReplyTo     *string    `json:"reply_to,omitempty"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Notification is a durable per-recipient notification record.
// ActionRequired notifications stay visible until explicitly acknowledged.
type Notification struct {
	ID             string                 `json:"id"`
	RecipientID    string                 `json:"recipient_id"`
	SenderID       *string                `json:"sender_id,omitempty"`
	Type           string                 `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Data           map[string]interface{} `json:"data,omitempty"`
	Channels       []string               `json:"channels"`
	Priority       string                 `json:"priority"`
	ActionRequired bool                   `json:"action_required"`
	Read           bool                   `json:"read"`
	ReadAt         *time.Time             `json:"read_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NotificationRequest is what components hand to the fan-out layer.
// The fan-out assigns the id and created timestamp on persistence.
type NotificationRequest struct {
	RecipientID    string
	SenderID       *string
	Type           string
	Title          string
	Message        string
	Data           map[string]interface{}
	Channels       []string
	Priority       string
	ActionRequired bool
}

// Session is the booked mentoring session the hub references by id.
// The row is owned by the scheduling CRUD layer; the hub only reads it.
type Session struct {
	ID          string    `json:"id" db:"id"`
	MentorID    string    `json:"mentor_id" db:"mentor_id"`
	StudentID   string    `json:"student_id" db:"student_id"`
	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`
	Status      string    `json:"status" db:"status"`
}

// Negotiation is the transient reschedule overlay on a session. It lives
// in memory only; when it expires the original schedule stands.
type Negotiation struct {
	SessionID    string    `json:"session_id"`
	RequesterID  string    `json:"requester_id"`
	ProposedTime time.Time `json:"proposed_time"`
	Reason       string    `json:"reason"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Participants returns both session participants.
func (s *Session) Participants() []string {
	return []string{s.MentorID, s.StudentID}
}

// Counterparty returns the other participant, or "" if userID is not a
// participant at all.
func (s *Session) Counterparty(userID string) string {
	switch userID {
	case s.MentorID:
		return s.StudentID
	case s.StudentID:
		return s.MentorID
	default:
		return ""
	}
}

// IsParticipant reports whether userID is one of the two session parties.
func (s *Session) IsParticipant(userID string) bool {
	return userID == s.MentorID || userID == s.StudentID
}
