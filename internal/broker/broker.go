package broker

import (
	"log"
	"sync"

	"skillhub/pkg/interfaces"
)

// Room id prefixes. Deterministic addressing: exactly one logical room per
// unordered user pair, one personal room per user, one room per session.
const (
	conversationPrefix = "conversation_"
	userPrefix         = "user_"
	sessionPrefix      = "session_"
)

// ConversationRoom computes the room id for the unordered pair (a, b) by
// sorting the two identities lexicographically before joining them, so
// ConversationRoom(a, b) == ConversationRoom(b, a).
func ConversationRoom(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return conversationPrefix + a + "_" + b
}

// UserRoom returns a user's personal room id.
func UserRoom(userID string) string {
	return userPrefix + userID
}

// SessionRoom returns the room id for session-scoped broadcast.
func SessionRoom(sessionID string) string {
	return sessionPrefix + sessionID
}

// Broker is the in-process room router. All mutation is guarded by a
// single RWMutex; membership is tracked both ways (room -> clients and
// client -> rooms) so LeaveAll stays O(rooms of that client).
type Broker struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]interfaces.Client // roomID -> connID -> client
	members map[string]map[string]bool              // connID -> roomID set
	clients map[string]interfaces.Client            // connID -> client
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{
		rooms:   make(map[string]map[string]interfaces.Client),
		members: make(map[string]map[string]bool),
		clients: make(map[string]interfaces.Client),
	}
}

// Join subscribes a client to a room. Re-joining is a no-op.
func (b *Broker) Join(c interfaces.Client, roomID string) {
	if c == nil || roomID == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rooms[roomID] == nil {
		b.rooms[roomID] = make(map[string]interfaces.Client)
	}
	b.rooms[roomID][c.ID()] = c

	if b.members[c.ID()] == nil {
		b.members[c.ID()] = make(map[string]bool)
	}
	b.members[c.ID()][roomID] = true
	b.clients[c.ID()] = c
}

// Leave unsubscribes a client from a room. Unknown memberships are
// absorbed silently.
func (b *Broker) Leave(c interfaces.Client, roomID string) {
	if c == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaveLocked(c.ID(), roomID)
}

// LeaveAll removes a client from every room and forgets the connection.
// Idempotent: a second call for the same client is a no-op.
func (b *Broker) LeaveAll(c interfaces.Client) {
	if c == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for roomID := range b.members[c.ID()] {
		b.leaveLocked(c.ID(), roomID)
	}
	delete(b.members, c.ID())
	delete(b.clients, c.ID())
}

// leaveLocked removes one membership; caller holds b.mu. Empty rooms are
// deleted to keep the map from growing with dead conversation ids.
func (b *Broker) leaveLocked(connID, roomID string) {
	room, exists := b.rooms[roomID]
	if !exists {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(b.rooms, roomID)
	}
	if set, ok := b.members[connID]; ok {
		delete(set, roomID)
	}
}

// Broadcast delivers an event envelope to every client in the room,
// skipping exclude when non-nil. An empty room is a no-op; the event is
// not queued for later delivery.
func (b *Broker) Broadcast(roomID, event string, payload interface{}, exclude interfaces.Client) {
	for _, c := range b.snapshot(roomID, exclude) {
		if err := c.Send(event, payload); err != nil {
			log.Printf("broker: dropping %s for conn %s (user %s): %v", event, c.ID(), c.UserID(), err)
		}
	}
}

// BroadcastAll delivers an event to every known client, skipping exclude.
func (b *Broker) BroadcastAll(event string, payload interface{}, exclude interfaces.Client) {
	b.mu.RLock()
	targets := make([]interfaces.Client, 0, len(b.clients))
	for _, c := range b.clients {
		if exclude != nil && c.ID() == exclude.ID() {
			continue
		}
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(event, payload); err != nil {
			log.Printf("broker: dropping %s for conn %s (user %s): %v", event, c.ID(), c.UserID(), err)
		}
	}
}

// SendToUser delivers to all of a user's active connections via the
// personal room every connection joins on registration.
func (b *Broker) SendToUser(userID, event string, payload interface{}) {
	b.Broadcast(UserRoom(userID), event, payload, nil)
}

// SendToSession delivers to every client with the session view open.
func (b *Broker) SendToSession(sessionID, event string, payload interface{}) {
	b.Broadcast(SessionRoom(sessionID), event, payload, nil)
}

// UserInRoom reports whether any of the user's connections is subscribed
// to the room.
func (b *Broker) UserInRoom(roomID, userID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, c := range b.rooms[roomID] {
		if c.UserID() == userID {
			return true
		}
	}
	return false
}

// snapshot copies the room membership under the read lock so delivery
// happens without holding it.
func (b *Broker) snapshot(roomID string, exclude interfaces.Client) []interfaces.Client {
	b.mu.RLock()
	defer b.mu.RUnlock()

	room, exists := b.rooms[roomID]
	if !exists {
		return nil
	}

	targets := make([]interfaces.Client, 0, len(room))
	for _, c := range room {
		if exclude != nil && c.ID() == exclude.ID() {
			continue
		}
		targets = append(targets, c)
	}
	return targets
}

// Stats returns router counters for the health endpoint.
func (b *Broker) Stats() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]int{
		"rooms":       len(b.rooms),
		"connections": len(b.clients),
	}
}
