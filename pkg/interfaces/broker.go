package interfaces

// Client is one live connection handle. Implementations must make Send
// safe for concurrent use; the WebSocket implementation uses a
// single-writer goroutine behind a buffered channel.
type Client interface {
	// ID returns the connection handle id, unique per connection.
	ID() string

	// UserID returns the authenticated owner of this connection.
	UserID() string

	// Send enqueues an outbound event envelope for this connection.
	Send(event string, payload interface{}) error

	// Close tears the connection down; safe to call more than once.
	Close() error
}

// Broker multiplexes named broadcast rooms over live connections.
// Broadcasting to a room with no subscribers is a no-op, never an error:
// durable state comes from persistence, not from the live fan-out.
type Broker interface {
	// Join subscribes a client to a room.
	Join(c Client, roomID string)

	// Leave unsubscribes a client from a room; unknown membership is a no-op.
	Leave(c Client, roomID string)

	// LeaveAll removes a client from every room it joined.
	LeaveAll(c Client)

	// Broadcast delivers an event to every client in the room, skipping
	// exclude when non-nil.
	Broadcast(roomID, event string, payload interface{}, exclude Client)

	// BroadcastAll delivers an event to every known client, skipping
	// exclude when non-nil. Used for presence transitions.
	BroadcastAll(event string, payload interface{}, exclude Client)

	// SendToUser delivers to all of a user's active connections via the
	// personal room.
	SendToUser(userID, event string, payload interface{})

	// SendToSession delivers to every client subscribed to a session room.
	SendToSession(sessionID, event string, payload interface{})

	// UserInRoom reports whether any of the user's connections is
	// currently subscribed to the room.
	UserInRoom(roomID, userID string) bool
}
