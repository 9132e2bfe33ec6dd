package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	nanoid "github.com/jaevor/go-nanoid"

	"skillhub/pkg/types"
)

// newConnID generates connection handle ids. Handles are ephemeral so a
// short nanoid is enough to tell two tabs of the same user apart.
var newConnID func() string

func init() {
	gen, err := nanoid.Standard(16)
	if err != nil {
		panic(err)
	}
	newConnID = gen
}

// Connection wraps one WebSocket client. WebSocket writes must be
// serialized, so all outbound frames funnel through a buffered channel
// drained by a single writer goroutine.
type Connection struct {
	id        string
	userID    string
	conn      *websocket.Conn
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	writeWait time.Duration
}

// NewConnection wraps an upgraded WebSocket for an authenticated user and
// starts the writer goroutine.
func NewConnection(conn *websocket.Conn, userID string, bufferSize int, writeWait time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if writeWait <= 0 {
		writeWait = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:        newConnID(),
		userID:    userID,
		conn:      conn,
		writeCh:   make(chan []byte, bufferSize),
		ctx:       ctx,
		cancel:    cancel,
		writeWait: writeWait,
	}

	go c.writeLoop()

	return c
}

// ID returns the connection handle id.
func (c *Connection) ID() string { return c.id }

// UserID returns the authenticated owner identity.
func (c *Connection) UserID() string { return c.userID }

// Context is cancelled when the connection closes.
func (c *Connection) Context() context.Context { return c.ctx }

// writeLoop is the single writer. It exits on close or the first write
// error; readers notice via the read side failing shortly after.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Send enqueues an event envelope for delivery. It never blocks longer
// than the configured write wait; a full buffer on a stalled client
// surfaces as ErrWriteTimeout rather than stalling the broadcast path.
func (c *Connection) Send(event string, payload interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(types.NewEnvelope(event, payload))
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeWait):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears down the connection. Safe to call multiple times; the
// writer goroutine exits via context cancellation.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
