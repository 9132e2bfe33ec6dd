package negotiation

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"skillhub/pkg/interfaces"
	"skillhub/pkg/types"
)

// DefaultWindow is how long a reschedule proposal stays open. Past it the
// proposal expires and the original schedule stands.
const DefaultWindow = 48 * time.Hour

// Coordinator runs the reschedule state machine layered on booked
// sessions: proposed -> accepted | declined | expired. The overlay is
// in-memory only; the session row itself belongs to the scheduling CRUD
// layer and is never mutated from here.
type Coordinator struct {
	sessions interfaces.SessionDirectory
	notifier interfaces.Notifier
	broker   interfaces.Broker
	window   time.Duration
	sweep    time.Duration

	mu       sync.Mutex
	pending  map[string]*types.Negotiation // sessionID -> open proposal
	shutdown chan struct{}
	running  bool
}

// NewCoordinator creates a stopped coordinator. window bounds proposal
// lifetime; sweep is how often expired proposals are collected.
func NewCoordinator(sessions interfaces.SessionDirectory, notifier interfaces.Notifier, b interfaces.Broker, window, sweep time.Duration) *Coordinator {
	if window <= 0 {
		window = DefaultWindow
	}
	if sweep <= 0 {
		sweep = time.Hour
	}
	return &Coordinator{
		sessions: sessions,
		notifier: notifier,
		broker:   b,
		window:   window,
		sweep:    sweep,
		pending:  make(map[string]*types.Negotiation),
		shutdown: make(chan struct{}),
	}
}

// RequestReschedule opens a proposal on behalf of requesterID. The
// requester must be a session participant; otherwise nothing is persisted
// and nothing is broadcast. The counterparty gets a high-priority
// action-required notification on in-app and email, plus a live
// session_reschedule_request event on their personal room.
func (c *Coordinator) RequestReschedule(ctx context.Context, requesterID string, payload types.RequestReschedulePayload) (*types.Negotiation, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	session, err := c.sessions.GetSession(ctx, payload.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsParticipant(requesterID) {
		return nil, fmt.Errorf("%w: %s is not a participant of session %s", interfaces.ErrUnauthorized, requesterID, payload.SessionID)
	}
	counterparty := session.Counterparty(requesterID)

	neg := &types.Negotiation{
		SessionID:    payload.SessionID,
		RequesterID:  requesterID,
		ProposedTime: payload.NewDate,
		Reason:       payload.Reason,
		Status:       types.NegotiationProposed,
		CreatedAt:    time.Now(),
	}

	// A newer proposal on the same session supersedes the old one.
	c.mu.Lock()
	c.pending[payload.SessionID] = neg
	c.mu.Unlock()

	if _, err := c.notifier.Notify(ctx, types.NotificationRequest{
		RecipientID: counterparty,
		SenderID:    &requesterID,
		Type:        types.NotificationSessionRescheduled,
		Title:       "Session reschedule requested",
		Message:     rescheduleMessage(payload),
		Data: map[string]interface{}{
			"session_id":    payload.SessionID,
			"proposed_time": payload.NewDate,
			"reason":        payload.Reason,
			"action_url":    "/sessions/" + payload.SessionID,
		},
		Channels:       []string{types.ChannelInApp, types.ChannelEmail},
		Priority:       types.PriorityHigh,
		ActionRequired: true,
	}); err != nil {
		// The live event still goes out; the notification leg failing
		// independently is logged, not fatal.
		log.Printf("negotiation: notification failed for session %s: %v", payload.SessionID, err)
	}

	c.broker.SendToUser(counterparty, types.EventSessionRescheduleReq, map[string]interface{}{
		"session_id":    payload.SessionID,
		"requested_by":  requesterID,
		"proposed_time": payload.NewDate,
		"reason":        payload.Reason,
	})

	return neg, nil
}

// Resolve closes a proposal as accepted or declined and converges both
// parties' open session views via a session_updated broadcast. The actor
// must be a participant. Resolution with no open proposal still emits the
// broadcast: the authoritative status change came through the session
// update path.
func (c *Coordinator) Resolve(ctx context.Context, actorID, sessionID, status string, update map[string]interface{}) error {
	if status != types.NegotiationAccepted && status != types.NegotiationDeclined {
		return ErrInvalidStatus
	}

	session, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsParticipant(actorID) {
		return fmt.Errorf("%w: %s is not a participant of session %s", interfaces.ErrUnauthorized, actorID, sessionID)
	}

	c.mu.Lock()
	if neg, open := c.pending[sessionID]; open && neg.Status == types.NegotiationProposed {
		neg.Status = status
		delete(c.pending, sessionID)
	}
	c.mu.Unlock()

	c.broker.SendToSession(sessionID, types.EventSessionUpdated, map[string]interface{}{
		"session_id": sessionID,
		"status":     status,
		"updated_by": actorID,
		"update":     update,
	})

	return nil
}

// Pending returns the open proposal for a session, if any.
func (c *Coordinator) Pending(sessionID string) (*types.Negotiation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	neg, ok := c.pending[sessionID]
	return neg, ok
}

// Start launches the expiry sweep.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrCoordinatorRunning
	}
	c.running = true
	c.mu.Unlock()

	go c.runSweep(ctx)
	return nil
}

// Stop halts the expiry sweep.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.shutdown)
}

func (c *Coordinator) runSweep(ctx context.Context) {
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.expireStale()
		case <-c.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// expireStale marks proposals past the window as expired and drops them.
// Only the overlay changes; the original schedule remains authoritative.
func (c *Coordinator) expireStale() {
	cutoff := time.Now().Add(-c.window)

	c.mu.Lock()
	defer c.mu.Unlock()

	for sessionID, neg := range c.pending {
		if neg.Status == types.NegotiationProposed && neg.CreatedAt.Before(cutoff) {
			neg.Status = types.NegotiationExpired
			delete(c.pending, sessionID)
			log.Printf("negotiation: proposal for session %s expired after %s", sessionID, c.window)
		}
	}
}

func rescheduleMessage(p types.RequestReschedulePayload) string {
	msg := "A new time has been proposed: " + p.NewDate.Format(time.RFC1123)
	if p.Reason != "" {
		msg += " (" + p.Reason + ")"
	}
	return msg
}
