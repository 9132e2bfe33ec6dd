package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"skillhub/internal/chat"
	"skillhub/internal/negotiation"
	"skillhub/internal/notify"
	"skillhub/internal/presence"
	"skillhub/pkg/interfaces"
	"skillhub/pkg/types"
)

// HealthChecker reports backing store health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server exposes the REST surface of the hub. No business logic lives
// here; handlers parse, delegate, and serialize.
type Server struct {
	verifier      interfaces.IdentityVerifier
	users         interfaces.UserDirectory
	notifications interfaces.NotificationStore
	pipeline      *chat.Pipeline
	notifier      *notify.Fanout
	negotiator    *negotiation.Coordinator
	registry      *presence.Registry
	health        HealthChecker
	router        *http.ServeMux
}

// NewServer wires the REST routes.
func NewServer(
	verifier interfaces.IdentityVerifier,
	users interfaces.UserDirectory,
	notifications interfaces.NotificationStore,
	pipeline *chat.Pipeline,
	notifier *notify.Fanout,
	negotiator *negotiation.Coordinator,
	registry *presence.Registry,
	health HealthChecker,
) *Server {
	s := &Server{
		verifier:      verifier,
		users:         users,
		notifications: notifications,
		pipeline:      pipeline,
		notifier:      notifier,
		negotiator:    negotiator,
		registry:      registry,
		health:        health,
		router:        http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/conversations/", s.corsMiddleware(s.jsonMiddleware(s.authMiddleware(http.HandlerFunc(s.handleConversations)))))
	s.router.Handle("/api/notifications", s.corsMiddleware(s.jsonMiddleware(s.authMiddleware(http.HandlerFunc(s.listNotifications)))))
	s.router.Handle("/api/notifications/", s.corsMiddleware(s.jsonMiddleware(s.authMiddleware(http.HandlerFunc(s.handleNotificationByID)))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(s.authMiddleware(http.HandlerFunc(s.handleSessionByID)))))
	s.router.Handle("/api/online", s.corsMiddleware(s.jsonMiddleware(s.authMiddleware(http.HandlerFunc(s.listOnline)))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type contextKey string

const userIDKey contextKey = "user_id"

// authMiddleware verifies the bearer credential and stashes the caller's
// user id in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := ""
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			credential = strings.TrimPrefix(header, "Bearer ")
		}

		userID, err := s.verifier.Verify(credential)
		if err != nil {
			s.sendError(w, "Invalid or missing credential", http.StatusUnauthorized)
			return
		}

		user, err := s.users.LookupUser(r.Context(), userID)
		if err != nil {
			s.sendError(w, "Unknown user", http.StatusUnauthorized)
			return
		}
		if !user.Active {
			s.sendError(w, "Account is deactivated", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// Response types for JSON serialization.
type ConversationResponse struct {
	Messages []*types.Message `json:"messages"`
}

type NotificationsResponse struct {
	Notifications []*types.Notification `json:"notifications"`
}

type OnlineResponse struct {
	Users []types.UserSummary `json:"users"`
}

type RespondSessionRequest struct {
	Status string                 `json:"status"`
	Update map[string]interface{} `json:"update,omitempty"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleConversations covers GET /api/conversations/{otherID} and
// POST /api/conversations/{otherID}/read.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	parts := strings.Split(path, "/")
	otherID := parts[0]
	if otherID == "" {
		s.sendError(w, "User ID required", http.StatusBadRequest)
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		s.getConversation(w, r, otherID)
	case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "read":
		s.markConversationRead(w, r, otherID)
	case r.Method == http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getConversation returns both directions of the caller's conversation
// with otherID, oldest first.
func (s *Server) getConversation(w http.ResponseWriter, r *http.Request, otherID string) {
	if !types.IsValidUserID(otherID) {
		s.sendError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	messages, err := s.pipeline.History(r.Context(), callerID(r), otherID)
	if err != nil {
		s.sendError(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}

	_ = json.NewEncoder(w).Encode(ConversationResponse{Messages: messages})
}

// markConversationRead flips unread messages from otherID to the caller.
// Safe to repeat; a second call is a no-op.
func (s *Server) markConversationRead(w http.ResponseWriter, r *http.Request, otherID string) {
	if !types.IsValidUserID(otherID) {
		s.sendError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if err := s.pipeline.MarkConversationRead(r.Context(), callerID(r), otherID); err != nil {
		s.sendError(w, "Failed to mark conversation read", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Conversation marked read"})
}

// listNotifications returns the caller's notifications, newest first.
func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	notifications, err := s.notifications.ListNotifications(r.Context(), callerID(r))
	if err != nil {
		s.sendError(w, "Failed to list notifications", http.StatusInternalServerError)
		return
	}
	if notifications == nil {
		notifications = []*types.Notification{}
	}

	_ = json.NewEncoder(w).Encode(NotificationsResponse{Notifications: notifications})
}

// handleNotificationByID covers POST /api/notifications/{id}/read.
func (s *Server) handleNotificationByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	parts := strings.Split(path, "/")

	switch {
	case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "read":
		s.markNotificationRead(w, r, parts[0])
	case r.Method == http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) markNotificationRead(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		s.sendError(w, "Notification ID required", http.StatusBadRequest)
		return
	}

	if err := s.notifier.Acknowledge(r.Context(), callerID(r), id); err != nil {
		if errors.Is(err, interfaces.ErrNotificationNotFound) {
			s.sendError(w, "Notification not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to mark notification read", http.StatusInternalServerError)
		}
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Notification marked read"})
}

// handleSessionByID covers POST /api/sessions/{id}/respond, the REST
// counterpart of accepting or declining a reschedule proposal.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(path, "/")

	switch {
	case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "respond":
		s.respondSession(w, r, parts[0])
	case r.Method == http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if sessionID == "" {
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	}

	var req RespondSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	err := s.negotiator.Resolve(r.Context(), callerID(r), sessionID, req.Status, req.Update)
	if err != nil {
		switch {
		case errors.Is(err, negotiation.ErrInvalidStatus):
			s.sendError(w, "Status must be accepted or declined", http.StatusBadRequest)
		case errors.Is(err, interfaces.ErrSessionNotFound):
			s.sendError(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, interfaces.ErrUnauthorized):
			s.sendError(w, "Not a participant of this session", http.StatusForbidden)
		default:
			s.sendError(w, "Failed to respond to session", http.StatusInternalServerError)
		}
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Session response recorded"})
}

// listOnline returns every currently connected user with their directory
// name attached.
func (s *Server) listOnline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ids := s.registry.OnlineIDs()
	users := make([]types.UserSummary, 0, len(ids))
	for _, id := range ids {
		summary := types.UserSummary{ID: id, Online: true}
		if seen, ok := s.registry.LastSeen(id); ok {
			summary.LastSeen = seen
		}
		if user, err := s.users.LookupUser(r.Context(), id); err == nil {
			summary.Name = user.Name
		}
		users = append(users, summary)
	}

	_ = json.NewEncoder(w).Encode(OnlineResponse{Users: users})
}

// healthCheck reports store health and live connection counts.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.health.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.Stats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
