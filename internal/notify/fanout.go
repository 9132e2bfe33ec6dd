package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"skillhub/pkg/interfaces"
	"skillhub/pkg/types"
)

// Fanout converts domain events into durable notification records and
// dispatches them on the requested channels. The record is always
// persisted before any channel fires; once durable, channel delivery is
// best-effort.
type Fanout struct {
	store      interfaces.NotificationStore
	broker     interfaces.Broker
	dispatcher *Dispatcher
}

// NewFanout creates the fan-out layer.
func NewFanout(store interfaces.NotificationStore, b interfaces.Broker, dispatcher *Dispatcher) *Fanout {
	return &Fanout{
		store:      store,
		broker:     b,
		dispatcher: dispatcher,
	}
}

// Notify persists the notification, then fans it out: in-app goes live to
// the recipient's personal room (plus the persisted record for later
// retrieval); push and email are handed to the dispatcher.
func (f *Fanout) Notify(ctx context.Context, req types.NotificationRequest) (*types.Notification, error) {
	if req.Priority == "" {
		req.Priority = types.PriorityNormal
	}
	if len(req.Channels) == 0 {
		req.Channels = []string{types.ChannelInApp}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	n := &types.Notification{
		ID:             uuid.New().String(),
		RecipientID:    req.RecipientID,
		SenderID:       req.SenderID,
		Type:           req.Type,
		Title:          req.Title,
		Message:        req.Message,
		Data:           req.Data,
		Channels:       req.Channels,
		Priority:       req.Priority,
		ActionRequired: req.ActionRequired,
		Read:           false,
		CreatedAt:      time.Now(),
	}

	if err := f.store.StoreNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	for _, channel := range n.Channels {
		switch channel {
		case types.ChannelInApp:
			f.broker.SendToUser(n.RecipientID, types.EventNotification, n)
		case types.ChannelPush, types.ChannelEmail:
			if err := f.dispatcher.Enqueue(channel, n); err != nil {
				log.Printf("notify: %s dispatch skipped for notification %s: %v", channel, n.ID, err)
			}
		}
	}

	return n, nil
}

// Acknowledge marks a notification read with a timestamp. Only the
// recipient may acknowledge; anyone else sees ErrNotificationNotFound.
// The record is never deleted; action-required notifications stay
// visible until this call happens.
func (f *Fanout) Acknowledge(ctx context.Context, recipientID, notificationID string) error {
	return f.store.MarkNotificationRead(ctx, recipientID, notificationID, time.Now())
}
