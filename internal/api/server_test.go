package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"skillhub/internal/broker"
	"skillhub/internal/chat"
	"skillhub/internal/negotiation"
	"skillhub/internal/notify"
	"skillhub/internal/presence"
	"skillhub/pkg/interfaces"
	"skillhub/pkg/types"
)

// stubVerifier accepts any non-empty credential and uses it as the user id.
type stubVerifier struct{}

func (stubVerifier) Verify(credential string) (string, error) {
	if credential == "" {
		return "", interfaces.ErrMissingCredential
	}
	if credential == "bad" {
		return "", interfaces.ErrInvalidCredential
	}
	return credential, nil
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

type fakeMessages struct {
	messages []*types.Message
	flipped  int64
}

func (s *fakeMessages) StoreMessage(ctx context.Context, m *types.Message) error {
	s.messages = append(s.messages, m)
	return nil
}

func (s *fakeMessages) MarkConversationRead(ctx context.Context, readerID, otherUserID string, readAt time.Time) (int64, error) {
	return s.flipped, nil
}

func (s *fakeMessages) GetConversation(ctx context.Context, userA, userB string) ([]*types.Message, error) {
	return s.messages, nil
}

type fakeNotifications struct {
	stored []*types.Notification
}

func (s *fakeNotifications) StoreNotification(ctx context.Context, n *types.Notification) error {
	s.stored = append(s.stored, n)
	return nil
}

func (s *fakeNotifications) MarkNotificationRead(ctx context.Context, recipientID, id string, readAt time.Time) error {
	for _, n := range s.stored {
		if n.ID == id && n.RecipientID == recipientID {
			n.Read = true
			return nil
		}
	}
	return interfaces.ErrNotificationNotFound
}

func (s *fakeNotifications) ListNotifications(ctx context.Context, recipientID string) ([]*types.Notification, error) {
	var out []*types.Notification
	for _, n := range s.stored {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out, nil
}

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

type fakeHealth struct {
	err error
}

func (h *fakeHealth) HealthCheck(ctx context.Context) error { return h.err }

type testEnv struct {
	server        *Server
	messages      *fakeMessages
	notifications *fakeNotifications
	registry      *presence.Registry
	health        *fakeHealth
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()

	users := &fakeUsers{known: map[string]*types.User{
		"alice":    {ID: "alice", Name: "Alice", Active: true},
		"bob":      {ID: "bob", Name: "Bob", Active: true},
		"carol":    {ID: "carol", Name: "Carol", Active: true},
		"inactive": {ID: "inactive", Name: "Gone", Active: false},
	}}
	messages := &fakeMessages{}
	notifications := &fakeNotifications{}
	sessions := &fakeSessions{sessions: map[string]*types.Session{
		"sess-1": {ID: "sess-1", MentorID: "alice", StudentID: "bob", ScheduledAt: time.Now().Add(48 * time.Hour), Status: "confirmed"},
	}}
	health := &fakeHealth{}

	b := broker.New()
	registry := presence.NewRegistry()
	dispatcher := notify.NewDispatcher(notify.LogPushDeliverer{}, notify.LogEmailDeliverer{}, users, 8, 1, time.Second)
	notifier := notify.NewFanout(notifications, b, dispatcher)
	pipeline := chat.NewPipeline(b, messages, users, notifier)
	negotiator := negotiation.NewCoordinator(sessions, notifier, b, time.Hour, time.Hour)

	server := NewServer(stubVerifier{}, users, notifications, pipeline, notifier, negotiator, registry, health)
	return &testEnv{
		server:        server,
		messages:      messages,
		notifications: notifications,
		registry:      registry,
		health:        health,
	}
}

func doRequest(env *testEnv, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func TestAuth_MissingCredential(t *testing.T) {
	env := setupServer(t)

	rec := doRequest(env, http.MethodGet, "/api/notifications", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuth_InvalidCredential(t *testing.T) {
	env := setupServer(t)

	rec := doRequest(env, http.MethodGet, "/api/notifications", "bad", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuth_UnknownUser(t *testing.T) {
	env := setupServer(t)

	rec := doRequest(env, http.MethodGet, "/api/notifications", "ghost", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuth_InactiveUser(t *testing.T) {
	env := setupServer(t)

	rec := doRequest(env, http.MethodGet, "/api/notifications", "inactive", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestGetConversation(t *testing.T) {
	env := setupServer(t)
	env.messages.messages = []*types.Message{
		{ID: "m1", SenderID: "alice", RecipientID: "bob", Content: "hi", Type: types.MessageTypeText, CreatedAt: time.Now()},
	}

	rec := doRequest(env, http.MethodGet, "/api/conversations/bob", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ConversationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].ID != "m1" {
		t.Errorf("unexpected messages: %+v", resp.Messages)
	}
}

func TestGetConversation_EmptyIsArray(t *testing.T) {
	env := setupServer(t)

	rec := doRequest(env, http.MethodGet, "/api/conversations/bob", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"messages":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestGetConversation_InvalidUserID(t *testing.T) {
	env := setupServer(t)

	rec := doRequest(env, http.MethodGet, "/api/conversations/has%20space", "alice", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestMarkConversationRead(t *testing.T) {
	env := setupServer(t)
	env.messages.flipped = 2

	rec := doRequest(env, http.MethodPost, "/api/conversations/bob/read", "alice", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListNotifications(t *testing.T) {
	env := setupServer(t)
	env.notifications.stored = []*types.Notification{
		{ID: "n1", RecipientID: "alice", Type: types.NotificationNewMessage, Title: "New message"},
		{ID: "n2", RecipientID: "bob", Type: types.NotificationNewMessage, Title: "New message"},
	}

	rec := doRequest(env, http.MethodGet, "/api/notifications", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp NotificationsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Notifications) != 1 || resp.Notifications[0].ID != "n1" {
		t.Errorf("expected only alice's notifications, got %+v", resp.Notifications)
	}
}

func TestMarkNotificationRead(t *testing.T) {
	env := setupServer(t)
	env.notifications.stored = []*types.Notification{
		{ID: "n1", RecipientID: "alice", Type: types.NotificationNewMessage, Title: "New message"},
	}

	rec := doRequest(env, http.MethodPost, "/api/notifications/n1/read", "alice", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !env.notifications.stored[0].Read {
		t.Error("notification not marked read")
	}

	rec = doRequest(env, http.MethodPost, "/api/notifications/ghost/read", "alice", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown notification, got %d", rec.Code)
	}
}

func TestMarkNotificationRead_OtherUsersNotification(t *testing.T) {
	env := setupServer(t)
	env.notifications.stored = []*types.Notification{
		{ID: "n1", RecipientID: "bob", Type: types.NotificationNewMessage, Title: "New message", ActionRequired: true},
	}

	// carol is authenticated but not the recipient; the record must stay
	// unread and the response must not reveal that it exists.
	rec := doRequest(env, http.MethodPost, "/api/notifications/n1/read", "carol", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another user's notification, got %d", rec.Code)
	}
	if env.notifications.stored[0].Read {
		t.Error("another user's acknowledgment flipped the read flag")
	}

	rec = doRequest(env, http.MethodPost, "/api/notifications/n1/read", "bob", "")
	if rec.Code != http.StatusOK {
		t.Errorf("recipient acknowledgment failed with %d", rec.Code)
	}
	if !env.notifications.stored[0].Read {
		t.Error("recipient acknowledgment did not mark the record read")
	}
}

func TestRespondSession(t *testing.T) {
	env := setupServer(t)

	rec := doRequest(env, http.MethodPost, "/api/sessions/sess-1/respond", "alice", `{"status":"accepted"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRespondSession_InvalidStatus(t *testing.T) {
	env := setupServer(t)

	rec := doRequest(env, http.MethodPost, "/api/sessions/sess-1/respond", "alice", `{"status":"maybe"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRespondSession_NonParticipant(t *testing.T) {
	env := setupServer(t)

	// carol exists in the directory but is not part of sess-1.
	rec := doRequest(env, http.MethodPost, "/api/sessions/sess-1/respond", "carol", `{"status":"accepted"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestRespondSession_UnknownSession(t *testing.T) {
	env := setupServer(t)

	rec := doRequest(env, http.MethodPost, "/api/sessions/sess-2/respond", "alice", `{"status":"accepted"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListOnline(t *testing.T) {
	env := setupServer(t)
	env.registry.Register("bob", fakePresenceClient{id: "c1"})

	rec := doRequest(env, http.MethodGet, "/api/online", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp OnlineResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Users) != 1 || resp.Users[0].ID != "bob" || resp.Users[0].Name != "Bob" {
		t.Errorf("unexpected online users: %+v", resp.Users)
	}
}

func TestListOnline_LastSeenFromRegistry(t *testing.T) {
	env := setupServer(t)
	c1 := fakePresenceClient{id: "c1"}
	c2 := fakePresenceClient{id: "c2"}
	env.registry.Register("bob", c1)
	env.registry.Register("bob", c2)
	env.registry.Deregister("bob", c1)

	want, ok := env.registry.LastSeen("bob")
	if !ok {
		t.Fatal("registry lost the last-seen timestamp")
	}

	rec := doRequest(env, http.MethodGet, "/api/online", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp OnlineResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Users) != 1 {
		t.Fatalf("expected 1 online user, got %d", len(resp.Users))
	}
	if !resp.Users[0].LastSeen.Equal(want) {
		t.Errorf("last_seen %v does not match registry %v", resp.Users[0].LastSeen, want)
	}
}

type fakePresenceClient struct {
	id string
}

func (c fakePresenceClient) ID() string                                   { return c.id }
func (c fakePresenceClient) UserID() string                               { return "" }
func (c fakePresenceClient) Send(event string, payload interface{}) error { return nil }
func (c fakePresenceClient) Close() error                                 { return nil }

func TestHealthCheck(t *testing.T) {
	env := setupServer(t)

	rec := doRequest(env, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	env.health.err = errors.New("db gone")
	rec = doRequest(env, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/notifications", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS headers on preflight")
	}
}
