package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"skillhub/internal/broker"
	"skillhub/pkg/interfaces"
	"skillhub/pkg/types"
)

type broadcastRecord struct {
	room    string
	event   string
	payload interface{}
}

// fakeBroker records everything routed through it.
type fakeBroker struct {
	broadcasts []broadcastRecord
	userSends  []broadcastRecord
	inRoom     map[string]bool // room+"|"+userID
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{inRoom: make(map[string]bool)}
}

func (b *fakeBroker) Join(c interfaces.Client, roomID string)    {}
func (b *fakeBroker) Leave(c interfaces.Client, roomID string)   {}
func (b *fakeBroker) LeaveAll(c interfaces.Client)               {}

func (b *fakeBroker) Broadcast(roomID, event string, payload interface{}, exclude interfaces.Client) {
	b.broadcasts = append(b.broadcasts, broadcastRecord{room: roomID, event: event, payload: payload})
}

func (b *fakeBroker) BroadcastAll(event string, payload interface{}, exclude interfaces.Client) {}

func (b *fakeBroker) SendToUser(userID, event string, payload interface{}) {
	b.userSends = append(b.userSends, broadcastRecord{room: userID, event: event, payload: payload})
}

func (b *fakeBroker) SendToSession(sessionID, event string, payload interface{}) {}

func (b *fakeBroker) UserInRoom(roomID, userID string) bool {
	return b.inRoom[roomID+"|"+userID]
}

// fakeStore is an in-memory MessageStore.
type fakeStore struct {
	messages  []*types.Message
	failStore bool
	flipCount int64
}

func (s *fakeStore) StoreMessage(ctx context.Context, m *types.Message) error {
	if s.failStore {
		return errors.New("disk full")
	}
	s.messages = append(s.messages, m)
	return nil
}

func (s *fakeStore) MarkConversationRead(ctx context.Context, readerID, otherUserID string, readAt time.Time) (int64, error) {
	return s.flipCount, nil
}

func (s *fakeStore) GetConversation(ctx context.Context, userA, userB string) ([]*types.Message, error) {
	return s.messages, nil
}

type fakeUsers struct {
	known map[string]*types.User
}

func (u *fakeUsers) LookupUser(ctx context.Context, id string) (*types.User, error) {
	user, ok := u.known[id]
	if !ok {
		return nil, interfaces.ErrUserNotFound
	}
	return user, nil
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

func setupPipeline() (*Pipeline, *fakeBroker, *fakeStore, *fakeNotifier) {
	b := newFakeBroker()
	store := &fakeStore{}
	users := &fakeUsers{known: map[string]*types.User{
		"alice": {ID: "alice", Name: "Alice", Active: true},
		"bob":   {ID: "bob", Name: "Bob", Active: true},
	}}
	notifier := &fakeNotifier{}
	return NewPipeline(b, store, users, notifier), b, store, notifier
}

func TestSendMessage_PersistsThenBroadcasts(t *testing.T) {
	p, b, store, _ := setupPipeline()

	msg, err := p.SendMessage(context.Background(), "alice", types.SendMessagePayload{
		RecipientID: "bob",
		Content:     "hello",
		MessageType: types.MessageTypeText,
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if len(store.messages) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(store.messages))
	}
	if msg.ID == "" {
		t.Error("message id not assigned")
	}
	if msg.Read {
		t.Error("new message must start unread")
	}

	if len(b.broadcasts) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(b.broadcasts))
	}
	if b.broadcasts[0].event != types.EventNewMessage {
		t.Errorf("expected %s, got %s", types.EventNewMessage, b.broadcasts[0].event)
	}
	if b.broadcasts[0].room != broker.ConversationRoom("alice", "bob") {
		t.Errorf("broadcast went to wrong room: %s", b.broadcasts[0].room)
	}
}

func TestSendMessage_StoreFailureSuppressesBroadcast(t *testing.T) {
	p, b, store, _ := setupPipeline()
	store.failStore = true

	_, err := p.SendMessage(context.Background(), "alice", types.SendMessagePayload{
		RecipientID: "bob",
		Content:     "hello",
		MessageType: types.MessageTypeText,
	})
	if err == nil {
		t.Fatal("expected error from failed store")
	}
	if len(b.broadcasts) != 0 {
		t.Error("broadcast happened despite persistence failure")
	}
	if len(b.userSends) != 0 {
		t.Error("notification leg ran despite persistence failure")
	}
}

func TestSendMessage_RecipientNotFound(t *testing.T) {
	p, b, store, _ := setupPipeline()

	_, err := p.SendMessage(context.Background(), "alice", types.SendMessagePayload{
		RecipientID: "ghost",
		Content:     "hello",
		MessageType: types.MessageTypeText,
	})
	if !errors.Is(err, ErrRecipientNotFound) {
		t.Errorf("expected ErrRecipientNotFound, got %v", err)
	}
	if len(store.messages) != 0 || len(b.broadcasts) != 0 {
		t.Error("message leaked past unknown recipient check")
	}
}

func TestSendMessage_SelfConversation(t *testing.T) {
	p, _, _, _ := setupPipeline()

	_, err := p.SendMessage(context.Background(), "alice", types.SendMessagePayload{
		RecipientID: "alice",
		Content:     "hello me",
		MessageType: types.MessageTypeText,
	})
	if !errors.Is(err, ErrSelfConversation) {
		t.Errorf("expected ErrSelfConversation, got %v", err)
	}
}

func TestSendMessage_NotifiesRecipientOutsideRoom(t *testing.T) {
	p, b, _, notifier := setupPipeline()

	content := strings.Repeat("x", types.PreviewLength+50)
	_, err := p.SendMessage(context.Background(), "alice", types.SendMessagePayload{
		RecipientID: "bob",
		Content:     content,
		MessageType: types.MessageTypeText,
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if len(b.userSends) != 1 {
		t.Fatalf("expected 1 personal-room send, got %d", len(b.userSends))
	}
	if b.userSends[0].event != types.EventMessageNotification {
		t.Errorf("expected %s, got %s", types.EventMessageNotification, b.userSends[0].event)
	}

	if len(notifier.requests) != 1 {
		t.Fatalf("expected 1 notification request, got %d", len(notifier.requests))
	}
	req := notifier.requests[0]
	if req.Type != types.NotificationNewMessage {
		t.Errorf("unexpected notification type %s", req.Type)
	}
	if len([]rune(req.Message)) != types.PreviewLength+3 {
		t.Errorf("notification carries untruncated content: %d runes", len([]rune(req.Message)))
	}
}

func TestSendMessage_SkipsNotificationWhenRecipientInRoom(t *testing.T) {
	p, b, _, notifier := setupPipeline()
	room := broker.ConversationRoom("alice", "bob")
	b.inRoom[room+"|bob"] = true

	_, err := p.SendMessage(context.Background(), "alice", types.SendMessagePayload{
		RecipientID: "bob",
		Content:     "hello",
		MessageType: types.MessageTypeText,
	})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if len(b.userSends) != 0 {
		t.Error("personal-room preview sent although recipient watches the room")
	}
	if len(notifier.requests) != 0 {
		t.Error("durable notification created although recipient watches the room")
	}
}

func TestSendMessage_NotificationFailureIsNotFatal(t *testing.T) {
	p, _, store, notifier := setupPipeline()
	notifier.fail = true

	msg, err := p.SendMessage(context.Background(), "alice", types.SendMessagePayload{
		RecipientID: "bob",
		Content:     "hello",
		MessageType: types.MessageTypeText,
	})
	if err != nil {
		t.Fatalf("notification failure leaked into send result: %v", err)
	}
	if msg == nil || len(store.messages) != 1 {
		t.Error("message not durable despite notification failure")
	}
}

func TestMarkConversationRead_BroadcastsOnlyWhenRowsFlip(t *testing.T) {
	p, b, store, _ := setupPipeline()

	store.flipCount = 3
	if err := p.MarkConversationRead(context.Background(), "bob", "alice"); err != nil {
		t.Fatalf("MarkConversationRead failed: %v", err)
	}
	if len(b.broadcasts) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(b.broadcasts))
	}
	if b.broadcasts[0].event != types.EventMessagesRead {
		t.Errorf("expected %s, got %s", types.EventMessagesRead, b.broadcasts[0].event)
	}

	// Second call flips nothing: complete no-op.
	store.flipCount = 0
	if err := p.MarkConversationRead(context.Background(), "bob", "alice"); err != nil {
		t.Fatalf("idempotent call failed: %v", err)
	}
	if len(b.broadcasts) != 1 {
		t.Error("no-op read-mark still broadcast")
	}
}

func TestSetTyping_NeverPersists(t *testing.T) {
	p, b, store, _ := setupPipeline()

	p.SetTyping("alice", "bob", true, nil)
	p.SetTyping("alice", "bob", false, nil)

	if len(store.messages) != 0 {
		t.Error("typing indicator reached the store")
	}
	if len(b.broadcasts) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(b.broadcasts))
	}
	if b.broadcasts[0].event != types.EventUserTyping || b.broadcasts[1].event != types.EventUserStoppedTyping {
		t.Errorf("unexpected typing events: %s, %s", b.broadcasts[0].event, b.broadcasts[1].event)
	}
}

func TestShareMeetingLink(t *testing.T) {
	p, b, store, _ := setupPipeline()

	scheduled := time.Date(2026, 9, 10, 15, 0, 0, 0, time.UTC)
	msg, err := p.ShareMeetingLink(context.Background(), "alice", types.ShareMeetingLinkPayload{
		RecipientID:   "bob",
		MeetingLink:   "https://meet.example.com/abc",
		ScheduledTime: &scheduled,
	})
	if err != nil {
		t.Fatalf("ShareMeetingLink failed: %v", err)
	}

	if msg.Type != types.MessageTypeMeetingLink {
		t.Errorf("expected meeting_link type, got %s", msg.Type)
	}
	if !strings.Contains(msg.Content, "https://meet.example.com/abc") {
		t.Errorf("content missing the link: %q", msg.Content)
	}
	if !strings.Contains(msg.Content, "scheduled for") {
		t.Errorf("content missing the schedule: %q", msg.Content)
	}
	if len(store.messages) != 1 {
		t.Error("meeting link message not persisted")
	}

	if len(b.broadcasts) != 1 || b.broadcasts[0].event != types.EventMeetingLinkShared {
		t.Error("meeting_link_shared broadcast missing")
	}
	if len(b.userSends) != 1 || b.userSends[0].event != types.EventMeetingLinkNotification {
		t.Error("meeting_link_notification to personal room missing")
	}
}

func TestShareMeetingLink_RejectsBadLink(t *testing.T) {
	p, _, store, _ := setupPipeline()

	_, err := p.ShareMeetingLink(context.Background(), "alice", types.ShareMeetingLinkPayload{
		RecipientID: "bob",
		MeetingLink: "notalink",
	})
	if !errors.Is(err, types.ErrInvalidLink) {
		t.Errorf("expected ErrInvalidLink, got %v", err)
	}
	if len(store.messages) != 0 {
		t.Error("invalid link persisted")
	}
}
