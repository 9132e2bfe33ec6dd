package negotiation

import (
	"context"
	"errors"
	"testing"
	"time"

	"skillhub/pkg/interfaces"
	"skillhub/pkg/types"
)

type fakeSessions struct {
	sessions map[string]*types.Session
}

func (s *fakeSessions) GetSession(ctx context.Context, id string) (*types.Session, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	return session, nil
}

func (s *fakeSessions) IsSessionParticipant(ctx context.Context, sessionID, userID string) (bool, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return session.IsParticipant(userID), nil
}

type fakeNotifier struct {
	requests []types.NotificationRequest
	fail     bool
}

func (n *fakeNotifier) Notify(ctx context.Context, req types.NotificationRequest) (*types.Notification, error) {
	if n.fail {
		return nil, errors.New("notify backend down")
	}
	n.requests = append(n.requests, req)
	return &types.Notification{ID: "n1", RecipientID: req.RecipientID}, nil
}

type routedEvent struct {
	target string
	event  string
}

type fakeBroker struct {
	userSends    []routedEvent
	sessionSends []routedEvent
}

func (b *fakeBroker) Join(c interfaces.Client, roomID string)  {}
func (b *fakeBroker) Leave(c interfaces.Client, roomID string) {}
func (b *fakeBroker) LeaveAll(c interfaces.Client)             {}
func (b *fakeBroker) Broadcast(roomID, event string, payload interface{}, exclude interfaces.Client) {
}
func (b *fakeBroker) BroadcastAll(event string, payload interface{}, exclude interfaces.Client) {}
func (b *fakeBroker) SendToUser(userID, event string, payload interface{}) {
	b.userSends = append(b.userSends, routedEvent{target: userID, event: event})
}
func (b *fakeBroker) SendToSession(sessionID, event string, payload interface{}) {
	b.sessionSends = append(b.sessionSends, routedEvent{target: sessionID, event: event})
}
func (b *fakeBroker) UserInRoom(roomID, userID string) bool { return false }

func setupCoordinator(window time.Duration) (*Coordinator, *fakeNotifier, *fakeBroker) {
	sessions := &fakeSessions{sessions: map[string]*types.Session{
		"sess-1": {
			ID:          "sess-1",
			MentorID:    "mentor",
			StudentID:   "student",
			ScheduledAt: time.Now().Add(72 * time.Hour),
			Status:      "confirmed",
		},
	}}
	notifier := &fakeNotifier{}
	b := &fakeBroker{}
	return NewCoordinator(sessions, notifier, b, window, time.Hour), notifier, b
}

func proposal() types.RequestReschedulePayload {
	return types.RequestReschedulePayload{
		SessionID: "sess-1",
		NewDate:   time.Now().Add(96 * time.Hour),
		Reason:    "conflict came up",
	}
}

func TestRequestReschedule(t *testing.T) {
	c, notifier, b := setupCoordinator(0)

	neg, err := c.RequestReschedule(context.Background(), "student", proposal())
	if err != nil {
		t.Fatalf("RequestReschedule failed: %v", err)
	}
	if neg.Status != types.NegotiationProposed {
		t.Errorf("expected proposed status, got %s", neg.Status)
	}

	if _, open := c.Pending("sess-1"); !open {
		t.Error("proposal not tracked as pending")
	}

	// The counterparty gets a durable high-priority action-required
	// notification on in-app and email.
	if len(notifier.requests) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.requests))
	}
	req := notifier.requests[0]
	if req.RecipientID != "mentor" {
		t.Errorf("notification went to %s, expected mentor", req.RecipientID)
	}
	if req.Type != types.NotificationSessionRescheduled {
		t.Errorf("unexpected notification type %s", req.Type)
	}
	if req.Priority != types.PriorityHigh || !req.ActionRequired {
		t.Error("reschedule notification must be high priority and action-required")
	}
	wantChannels := map[string]bool{types.ChannelInApp: true, types.ChannelEmail: true}
	for _, ch := range req.Channels {
		delete(wantChannels, ch)
	}
	if len(wantChannels) != 0 {
		t.Errorf("missing channels: %v", wantChannels)
	}

	// Plus the live event on the counterparty's personal room.
	if len(b.userSends) != 1 {
		t.Fatalf("expected 1 live event, got %d", len(b.userSends))
	}
	if b.userSends[0].target != "mentor" || b.userSends[0].event != types.EventSessionRescheduleReq {
		t.Errorf("unexpected live event: %+v", b.userSends[0])
	}
}

func TestRequestReschedule_NonParticipant(t *testing.T) {
	c, notifier, b := setupCoordinator(0)

	_, err := c.RequestReschedule(context.Background(), "stranger", proposal())
	if !errors.Is(err, interfaces.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if len(notifier.requests) != 0 || len(b.userSends) != 0 {
		t.Error("unauthorized request produced side effects")
	}
	if _, open := c.Pending("sess-1"); open {
		t.Error("unauthorized proposal tracked as pending")
	}
}

func TestRequestReschedule_UnknownSession(t *testing.T) {
	c, _, _ := setupCoordinator(0)

	p := proposal()
	p.SessionID = "nope"
	_, err := c.RequestReschedule(context.Background(), "student", p)
	if !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRequestReschedule_NotificationFailureStillEmitsLiveEvent(t *testing.T) {
	c, notifier, b := setupCoordinator(0)
	notifier.fail = true

	_, err := c.RequestReschedule(context.Background(), "student", proposal())
	if err != nil {
		t.Fatalf("notification failure leaked into result: %v", err)
	}
	if len(b.userSends) != 1 {
		t.Error("live event suppressed by notification failure")
	}
}

func TestRequestReschedule_NewProposalSupersedes(t *testing.T) {
	c, _, _ := setupCoordinator(0)

	first := proposal()
	if _, err := c.RequestReschedule(context.Background(), "student", first); err != nil {
		t.Fatal(err)
	}

	second := proposal()
	second.NewDate = first.NewDate.Add(24 * time.Hour)
	if _, err := c.RequestReschedule(context.Background(), "mentor", second); err != nil {
		t.Fatal(err)
	}

	neg, open := c.Pending("sess-1")
	if !open {
		t.Fatal("no pending proposal")
	}
	if neg.RequesterID != "mentor" || !neg.ProposedTime.Equal(second.NewDate) {
		t.Error("later proposal did not supersede the earlier one")
	}
}

func TestResolve(t *testing.T) {
	c, _, b := setupCoordinator(0)

	if _, err := c.RequestReschedule(context.Background(), "student", proposal()); err != nil {
		t.Fatal(err)
	}

	err := c.Resolve(context.Background(), "mentor", "sess-1", types.NegotiationAccepted, map[string]interface{}{"note": "works for me"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if _, open := c.Pending("sess-1"); open {
		t.Error("resolved proposal still pending")
	}
	if len(b.sessionSends) != 1 {
		t.Fatalf("expected 1 session broadcast, got %d", len(b.sessionSends))
	}
	if b.sessionSends[0].target != "sess-1" || b.sessionSends[0].event != types.EventSessionUpdated {
		t.Errorf("unexpected session broadcast: %+v", b.sessionSends[0])
	}
}

func TestResolve_InvalidStatus(t *testing.T) {
	c, _, _ := setupCoordinator(0)

	err := c.Resolve(context.Background(), "mentor", "sess-1", "maybe", nil)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestResolve_NonParticipant(t *testing.T) {
	c, _, b := setupCoordinator(0)

	err := c.Resolve(context.Background(), "stranger", "sess-1", types.NegotiationDeclined, nil)
	if !errors.Is(err, interfaces.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if len(b.sessionSends) != 0 {
		t.Error("unauthorized resolve broadcast anyway")
	}
}

func TestExpireStale(t *testing.T) {
	c, _, _ := setupCoordinator(time.Minute)

	if _, err := c.RequestReschedule(context.Background(), "student", proposal()); err != nil {
		t.Fatal(err)
	}

	// Backdate the proposal past the window and sweep.
	c.mu.Lock()
	c.pending["sess-1"].CreatedAt = time.Now().Add(-2 * time.Minute)
	c.mu.Unlock()

	c.expireStale()

	if _, open := c.Pending("sess-1"); open {
		t.Error("expired proposal still pending")
	}
}

func TestExpireStale_KeepsFreshProposals(t *testing.T) {
	c, _, _ := setupCoordinator(time.Hour)

	if _, err := c.RequestReschedule(context.Background(), "student", proposal()); err != nil {
		t.Fatal(err)
	}

	c.expireStale()

	if _, open := c.Pending("sess-1"); !open {
		t.Error("fresh proposal swept away")
	}
}

func TestStartStop(t *testing.T) {
	c, _, _ := setupCoordinator(0)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrCoordinatorRunning) {
		t.Errorf("expected ErrCoordinatorRunning, got %v", err)
	}
	c.Stop()
	c.Stop()
}
