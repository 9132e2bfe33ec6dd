package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"skillhub/internal/broker"
	"skillhub/pkg/interfaces"
	"skillhub/pkg/types"
)

// Pipeline validates, persists and delivers conversation messages, and
// propagates read receipts and typing indicators. Persistence always
// precedes broadcast: a message that fails to store is never visible.
type Pipeline struct {
	broker   interfaces.Broker
	messages interfaces.MessageStore
	users    interfaces.UserDirectory
	notifier interfaces.Notifier
}

// NewPipeline creates a message pipeline with injected collaborators.
func NewPipeline(b interfaces.Broker, messages interfaces.MessageStore, users interfaces.UserDirectory, notifier interfaces.Notifier) *Pipeline {
	return &Pipeline{
		broker:   b,
		messages: messages,
		users:    users,
		notifier: notifier,
	}
}

// SendMessage persists a message and broadcasts new_message to the
// conversation room. When the recipient is not watching that room, a
// preview goes to their personal room and a durable new_message
// notification is created; failures on that leg are logged, never fatal
// to the already-persisted message.
func (p *Pipeline) SendMessage(ctx context.Context, senderID string, payload types.SendMessagePayload) (*types.Message, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if senderID == payload.RecipientID {
		return nil, ErrSelfConversation
	}

	if _, err := p.users.LookupUser(ctx, payload.RecipientID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRecipientNotFound, payload.RecipientID)
	}

	msg := &types.Message{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		RecipientID: payload.RecipientID,
		Content:     payload.Content,
		Type:        payload.MessageType,
		ReplyTo:     payload.ReplyTo,
		Read:        false,
		CreatedAt:   time.Now(),
	}

	if err := p.messages.StoreMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	room := broker.ConversationRoom(senderID, payload.RecipientID)
	p.broker.Broadcast(room, types.EventNewMessage, msg, nil)

	if !p.broker.UserInRoom(room, payload.RecipientID) {
		p.notifyRecipient(ctx, msg)
	}

	return msg, nil
}

// notifyRecipient handles the out-of-room leg: a lightweight preview on
// the personal room plus a durable notification record via the fan-out.
func (p *Pipeline) notifyRecipient(ctx context.Context, msg *types.Message) {
	preview := types.Preview(msg.Content)

	p.broker.SendToUser(msg.RecipientID, types.EventMessageNotification, map[string]interface{}{
		"message_id": msg.ID,
		"sender_id":  msg.SenderID,
		"preview":    preview,
	})

	senderID := msg.SenderID
	if _, err := p.notifier.Notify(ctx, types.NotificationRequest{
		RecipientID: msg.RecipientID,
		SenderID:    &senderID,
		Type:        types.NotificationNewMessage,
		Title:       "New message",
		Message:     preview,
		Data: map[string]interface{}{
			"message_id": msg.ID,
			"sender_id":  msg.SenderID,
			"action_url": "/messages/" + msg.SenderID,
		},
		Channels: []string{types.ChannelInApp},
		Priority: types.PriorityNormal,
	}); err != nil {
		// Partial failure is acceptable: the message itself is durable.
		log.Printf("chat: notification leg failed for message %s: %v", msg.ID, err)
	}
}

// MarkConversationRead flips the read flag on every unread message
// addressed to readerID in the conversation and broadcasts messages_read
// so the sender's view converges. Idempotent: when nothing was unread it
// is a complete no-op with no broadcast.
func (p *Pipeline) MarkConversationRead(ctx context.Context, readerID, otherUserID string) error {
	readAt := time.Now()
	flipped, err := p.messages.MarkConversationRead(ctx, readerID, otherUserID, readAt)
	if err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	if flipped == 0 {
		return nil
	}

	p.broker.Broadcast(broker.ConversationRoom(readerID, otherUserID), types.EventMessagesRead, map[string]interface{}{
		"reader_id":     readerID,
		"other_user_id": otherUserID,
		"count":         flipped,
		"read_at":       readAt,
	}, nil)

	return nil
}

// SetTyping fans a typing indicator out to the conversation room
// excluding the typist. Fire-and-forget: nothing is persisted and an
// offline counterparty simply never sees it.
func (p *Pipeline) SetTyping(userID, otherUserID string, typing bool, exclude interfaces.Client) {
	event := types.EventUserStoppedTyping
	if typing {
		event = types.EventUserTyping
	}
	p.broker.Broadcast(broker.ConversationRoom(userID, otherUserID), event, map[string]interface{}{
		"user_id": userID,
	}, exclude)
}

// ShareMeetingLink synthesizes a meeting_link message, persists and
// broadcasts it like a normal send, and additionally pushes a dedicated
// meeting_link_notification to the recipient's personal room so the link
// is visible outside the conversation view.
func (p *Pipeline) ShareMeetingLink(ctx context.Context, senderID string, payload types.ShareMeetingLinkPayload) (*types.Message, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if senderID == payload.RecipientID {
		return nil, ErrSelfConversation
	}

	if _, err := p.users.LookupUser(ctx, payload.RecipientID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRecipientNotFound, payload.RecipientID)
	}

	content := "Meeting link: " + payload.MeetingLink
	if payload.ScheduledTime != nil {
		content += " (scheduled for " + payload.ScheduledTime.Format(time.RFC1123) + ")"
	}

	msg := &types.Message{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		RecipientID: payload.RecipientID,
		Content:     content,
		Type:        types.MessageTypeMeetingLink,
		Read:        false,
		CreatedAt:   time.Now(),
	}

	if err := p.messages.StoreMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist meeting link message: %w", err)
	}

	room := broker.ConversationRoom(senderID, payload.RecipientID)
	p.broker.Broadcast(room, types.EventMeetingLinkShared, msg, nil)

	p.broker.SendToUser(payload.RecipientID, types.EventMeetingLinkNotification, map[string]interface{}{
		"message_id":     msg.ID,
		"sender_id":      senderID,
		"meeting_link":   payload.MeetingLink,
		"session_id":     payload.SessionID,
		"scheduled_time": payload.ScheduledTime,
	})

	return msg, nil
}

// History returns the full conversation between two users in
// chronological order.
func (p *Pipeline) History(ctx context.Context, userA, userB string) ([]*types.Message, error) {
	return p.messages.GetConversation(ctx, userA, userB)
}
