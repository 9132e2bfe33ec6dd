package presence

import (
	"sync"
	"time"

	"skillhub/pkg/interfaces"
)

// entry tracks one user's live connections. A user is online iff the set
// is non-empty; lastSeen is updated every time a connection drops.
type entry struct {
	conns    map[string]interfaces.Client // connID -> client
	lastSeen time.Time
}

// Registry is the source of online/offline truth. Multiple connections
// per user are legal (multi-device); all mutation serializes on one
// RWMutex so concurrent connect/disconnect for the same user cannot
// interleave partially.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*entry
	seen  map[string]time.Time // retained after the user goes offline
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*entry),
		seen:  make(map[string]time.Time),
	}
}

// Register adds a connection for the user and reports whether this was
// the user's first active connection (the online transition).
func (r *Registry) Register(userID string, c interfaces.Client) (first bool) {
	if c == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.users[userID]
	if !exists {
		e = &entry{conns: make(map[string]interfaces.Client)}
		r.users[userID] = e
	}
	first = len(e.conns) == 0
	e.conns[c.ID()] = c
	return first
}

// Deregister removes a connection for the user and reports whether it was
// the last one (the offline transition) along with the last-seen
// timestamp. Removing an unknown or already-removed connection is an
// idempotent no-op so a close racing an in-flight send cannot
// double-deregister.
func (r *Registry) Deregister(userID string, c interfaces.Client) (last bool, lastSeen time.Time) {
	if c == nil {
		return false, time.Time{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.users[userID]
	if !exists {
		return false, time.Time{}
	}
	if _, registered := e.conns[c.ID()]; !registered {
		return false, e.lastSeen
	}

	delete(e.conns, c.ID())
	e.lastSeen = time.Now()
	r.seen[userID] = e.lastSeen

	if len(e.conns) == 0 {
		lastSeen = e.lastSeen
		delete(r.users, userID)
		return true, lastSeen
	}
	return false, e.lastSeen
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.users[userID]
	return exists && len(e.conns) > 0
}

// OnlineIDs returns the ids of every online user.
func (r *Registry) OnlineIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users))
	for id, e := range r.users {
		if len(e.conns) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// LastSeen returns when the user last dropped a connection. The zero
// time with ok=false means the user was never seen disconnecting.
func (r *Registry) LastSeen(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.seen[userID]
	return t, ok
}

// Connections returns the user's live connection handles.
func (r *Registry) Connections(userID string) []interfaces.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.users[userID]
	if !exists {
		return nil
	}
	conns := make([]interfaces.Client, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	return conns
}

// Stats returns registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, e := range r.users {
		total += len(e.conns)
	}
	return map[string]int{
		"online_users":      len(r.users),
		"total_connections": total,
	}
}
