package interfaces

import (
	"context"
	"time"

	"skillhub/pkg/types"
)

// MessageStore persists conversation messages. StoreMessage must be
// exactly-once per logical send; durability precedes any live broadcast.
type MessageStore interface {
	// StoreMessage persists a new message.
	StoreMessage(ctx context.Context, message *types.Message) error

	// MarkConversationRead flips read=true with readAt on every unread
	// message addressed to readerID from otherUserID, returning the number
	// of rows flipped. Zero rows means the call was a no-op.
	MarkConversationRead(ctx context.Context, readerID, otherUserID string, readAt time.Time) (int64, error)

	// GetConversation returns both directions of a conversation in
	// chronological order.
	GetConversation(ctx context.Context, userA, userB string) ([]*types.Message, error)
}

// NotificationStore persists durable notification records.
type NotificationStore interface {
	// StoreNotification persists a new notification.
	StoreNotification(ctx context.Context, n *types.Notification) error

	// MarkNotificationRead stamps the record read; acknowledgment never
	// deletes. Only the recipient may acknowledge: an unknown id or an id
	// owned by another user returns ErrNotificationNotFound.
	MarkNotificationRead(ctx context.Context, recipientID, id string, readAt time.Time) error

	// ListNotifications returns a recipient's notifications, newest first.
	ListNotifications(ctx context.Context, recipientID string) ([]*types.Notification, error)
}

// UserDirectory resolves user identities. Backed by the platform user
// table; the hub never writes through it.
type UserDirectory interface {
	// LookupUser returns the user or ErrUserNotFound.
	LookupUser(ctx context.Context, id string) (*types.User, error)
}

// SessionDirectory resolves booked sessions for negotiation and
// session-room access checks.
type SessionDirectory interface {
	// GetSession returns the session or ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (*types.Session, error)

	// IsSessionParticipant reports whether userID is one of the two
	// participants of the session.
	IsSessionParticipant(ctx context.Context, sessionID, userID string) (bool, error)
}

// Notifier is the fan-out entry point consumed by the message pipeline and
// the negotiation coordinator.
type Notifier interface {
	// Notify persists a notification and dispatches it on the requested
	// channels. The returned record reflects what was persisted.
	Notify(ctx context.Context, req types.NotificationRequest) (*types.Notification, error)
}
