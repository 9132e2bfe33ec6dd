package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"skillhub/internal/broker"
	"skillhub/internal/chat"
	"skillhub/internal/negotiation"
	"skillhub/internal/notify"
	"skillhub/internal/presence"
	"skillhub/pkg/interfaces"
	"skillhub/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is deferred to the reverse proxy in deployment.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Options tunes connection heartbeat and buffering.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteWait    time.Duration
	BufferSize   int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteWait:    5 * time.Second,
		BufferSize:   100,
	}
}

// Handler is the connection manager: it authenticates inbound WebSocket
// requests, wires accepted connections into the presence registry and the
// personal room, and drives the per-connection read pump that dispatches
// client events into the pipeline, coordinator and fan-out.
type Handler struct {
	verifier   interfaces.IdentityVerifier
	users      interfaces.UserDirectory
	sessions   interfaces.SessionDirectory
	registry   *presence.Registry
	broker     interfaces.Broker
	pipeline   *chat.Pipeline
	negotiator *negotiation.Coordinator
	notifier   *notify.Fanout
	opts       Options
}

// NewHandler creates a connection manager with injected collaborators.
func NewHandler(
	verifier interfaces.IdentityVerifier,
	users interfaces.UserDirectory,
	sessions interfaces.SessionDirectory,
	registry *presence.Registry,
	b interfaces.Broker,
	pipeline *chat.Pipeline,
	negotiator *negotiation.Coordinator,
	notifier *notify.Fanout,
	opts Options,
) *Handler {
	if opts.PingInterval <= 0 {
		opts = DefaultOptions()
	}
	return &Handler{
		verifier:   verifier,
		users:      users,
		sessions:   sessions,
		registry:   registry,
		broker:     b,
		pipeline:   pipeline,
		negotiator: negotiator,
		notifier:   notifier,
		opts:       opts,
	}
}

// HandleWebSocket authenticates and upgrades an inbound connection.
// Authentication happens before the upgrade so a refused connection never
// touches the presence registry or any room.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	credential := bearerCredential(r)
	if credential == "" {
		http.Error(w, "Missing credential", http.StatusUnauthorized)
		return
	}

	userID, err := h.verifier.Verify(credential)
	if err != nil {
		log.Printf("websocket: credential rejected: %v", err)
		http.Error(w, "Invalid credential", http.StatusUnauthorized)
		return
	}

	user, err := h.users.LookupUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "Unknown user", http.StatusUnauthorized)
		return
	}
	if !user.Active {
		http.Error(w, "Account inactive", http.StatusForbidden)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket: upgrade failed for user %s: %v", userID, err)
		return
	}

	conn := NewConnection(wsConn, userID, h.opts.BufferSize, h.opts.WriteWait)

	// Registration order matters: the personal room subscription must be
	// in place before anyone can observe this user as online.
	first := h.registry.Register(userID, conn)
	h.broker.Join(conn, broker.UserRoom(userID))

	if first {
		h.broker.BroadcastAll(types.EventUserOnline, map[string]interface{}{
			"user_id": userID,
			"name":    user.Name,
		}, conn)
	}

	log.Printf("websocket: connected user=%s conn=%s", userID, conn.ID())

	go h.handleConnection(conn)
}

// bearerCredential extracts the credential from the Authorization header
// or, for browser WebSocket clients that cannot set headers, the token
// query parameter.
func bearerCredential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// handleConnection runs the heartbeat and read pump, and guarantees the
// connection is released from every room and the registry exactly once.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.broker.LeaveAll(conn)
		last, lastSeen := h.registry.Deregister(conn.UserID(), conn)
		if last {
			h.broker.BroadcastAll(types.EventUserOffline, map[string]interface{}{
				"user_id":   conn.UserID(),
				"last_seen": lastSeen,
			}, conn)
		}
		_ = conn.Close()
		log.Printf("websocket: disconnected user=%s conn=%s", conn.UserID(), conn.ID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.opts.WriteWait)); err != nil {
					return
				}
			case <-conn.Context().Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket: read error for user %s: %v", conn.UserID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		ev, err := types.DecodeInbound(data)
		if err != nil {
			log.Printf("websocket: rejected frame from %s: %v", conn.UserID(), err)
			continue
		}

		h.dispatch(conn, ev)
	}
}

// dispatch routes one decoded client event. Per-connection ordering is
// preserved because dispatch runs synchronously on the read pump.
func (h *Handler) dispatch(conn *Connection, ev *types.InboundEvent) {
	ctx := conn.Context()
	userID := conn.UserID()

	switch ev.Kind {
	case types.EventJoinConversation:
		var p types.ConversationPayload
		if err := ev.ParsePayload(&p); err != nil {
			return
		}
		h.broker.Join(conn, broker.ConversationRoom(userID, p.OtherUserID))

	case types.EventLeaveConversation:
		var p types.ConversationPayload
		if err := ev.ParsePayload(&p); err != nil {
			return
		}
		h.broker.Leave(conn, broker.ConversationRoom(userID, p.OtherUserID))

	case types.EventSendMessage:
		var p types.SendMessagePayload
		if err := ev.ParsePayload(&p); err != nil {
			h.sendError(conn, types.EventMessageError, err, map[string]interface{}{})
			return
		}
		msg, err := h.pipeline.SendMessage(ctx, userID, p)
		if err != nil {
			h.sendError(conn, types.EventMessageError, err, map[string]interface{}{
				"recipient_id": p.RecipientID,
			})
			return
		}
		if err := conn.Send(types.EventMessageSent, map[string]interface{}{
			"message_id": msg.ID,
		}); err != nil {
			log.Printf("websocket: ack failed for user %s: %v", userID, err)
		}

	case types.EventMarkMessagesRead:
		var p types.ConversationPayload
		if err := ev.ParsePayload(&p); err != nil {
			return
		}
		if err := h.pipeline.MarkConversationRead(ctx, userID, p.OtherUserID); err != nil {
			log.Printf("websocket: mark read failed for user %s: %v", userID, err)
		}

	case types.EventTypingStart, types.EventTypingStop:
		var p types.ConversationPayload
		if err := ev.ParsePayload(&p); err != nil {
			return
		}
		h.pipeline.SetTyping(userID, p.OtherUserID, ev.Kind == types.EventTypingStart, conn)

	case types.EventJoinSession:
		var p types.SessionPayload
		if err := ev.ParsePayload(&p); err != nil {
			return
		}
		ok, err := h.sessions.IsSessionParticipant(ctx, p.SessionID, userID)
		if err != nil || !ok {
			log.Printf("websocket: refused session join user=%s session=%s: %v", userID, p.SessionID, err)
			return
		}
		h.broker.Join(conn, broker.SessionRoom(p.SessionID))

	case types.EventLeaveSession:
		var p types.SessionPayload
		if err := ev.ParsePayload(&p); err != nil {
			return
		}
		h.broker.Leave(conn, broker.SessionRoom(p.SessionID))

	case types.EventSessionUpdate:
		var p types.SessionUpdatePayload
		if err := ev.ParsePayload(&p); err != nil {
			h.sendError(conn, types.EventRescheduleError, err, map[string]interface{}{})
			return
		}
		if err := h.negotiator.Resolve(ctx, userID, p.SessionID, p.Status, p.Update); err != nil {
			h.sendError(conn, types.EventRescheduleError, err, map[string]interface{}{
				"session_id": p.SessionID,
			})
		}

	case types.EventNotificationRead:
		var p types.NotificationReadPayload
		if err := ev.ParsePayload(&p); err != nil {
			return
		}
		if err := h.notifier.Acknowledge(ctx, userID, p.NotificationID); err != nil {
			log.Printf("websocket: acknowledge failed for user %s: %v", userID, err)
		}

	case types.EventShareMeetingLink:
		var p types.ShareMeetingLinkPayload
		if err := ev.ParsePayload(&p); err != nil {
			h.sendError(conn, types.EventMeetingLinkError, err, map[string]interface{}{})
			return
		}
		msg, err := h.pipeline.ShareMeetingLink(ctx, userID, p)
		if err != nil {
			h.sendError(conn, types.EventMeetingLinkError, err, map[string]interface{}{
				"recipient_id": p.RecipientID,
			})
			return
		}
		if err := conn.Send(types.EventMessageSent, map[string]interface{}{
			"message_id": msg.ID,
		}); err != nil {
			log.Printf("websocket: ack failed for user %s: %v", userID, err)
		}

	case types.EventRequestReschedule:
		var p types.RequestReschedulePayload
		if err := ev.ParsePayload(&p); err != nil {
			h.sendError(conn, types.EventRescheduleError, err, map[string]interface{}{})
			return
		}
		if _, err := h.negotiator.RequestReschedule(ctx, userID, p); err != nil {
			h.sendError(conn, types.EventRescheduleError, err, map[string]interface{}{
				"session_id": p.SessionID,
			})
		}

	case types.EventGetOnlineUsers:
		h.sendOnlineUsers(ctx, conn)
	}
}

// sendOnlineUsers answers a get_online_users request with directory-
// enriched summaries of everyone else currently online.
func (h *Handler) sendOnlineUsers(ctx context.Context, conn *Connection) {
	ids := h.registry.OnlineIDs()
	summaries := make([]types.UserSummary, 0, len(ids))
	for _, id := range ids {
		if id == conn.UserID() {
			continue
		}
		user, err := h.users.LookupUser(ctx, id)
		if err != nil {
			continue
		}
		summary := types.UserSummary{
			ID:     user.ID,
			Name:   user.Name,
			Online: true,
		}
		if seen, ok := h.registry.LastSeen(id); ok {
			summary.LastSeen = seen
		}
		summaries = append(summaries, summary)
	}
	if err := conn.Send(types.EventOnlineUsers, map[string]interface{}{
		"users": summaries,
	}); err != nil {
		log.Printf("websocket: online users reply failed for %s: %v", conn.UserID(), err)
	}
}

// sendError reports a failed request back to the originating connection
// with a machine-readable reason plus the request correlation fields.
func (h *Handler) sendError(conn *Connection, event string, cause error, payload map[string]interface{}) {
	payload["reason"] = errorReason(cause)
	payload["message"] = cause.Error()
	if err := conn.Send(event, payload); err != nil {
		log.Printf("websocket: error report failed for %s: %v", conn.UserID(), err)
	}
}

// errorReason maps sentinel errors to short machine-readable codes.
func errorReason(err error) string {
	switch {
	case errors.Is(err, chat.ErrRecipientNotFound), errors.Is(err, interfaces.ErrUserNotFound):
		return "recipient_not_found"
	case errors.Is(err, interfaces.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, interfaces.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, interfaces.ErrNotificationNotFound):
		return "notification_not_found"
	case errors.Is(err, types.ErrInvalidPayload),
		errors.Is(err, negotiation.ErrInvalidStatus),
		errors.Is(err, types.ErrInvalidUserID),
		errors.Is(err, types.ErrEmptyContent),
		errors.Is(err, types.ErrContentTooLarge),
		errors.Is(err, types.ErrInvalidMessageType),
		errors.Is(err, types.ErrInvalidLink),
		errors.Is(err, types.ErrMissingSessionID),
		errors.Is(err, types.ErrMissingTime):
		return "validation_error"
	default:
		return "request_failed"
	}
}
