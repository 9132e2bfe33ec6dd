package websocket

import "errors"

// Connection-level error types.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidJSON      = errors.New("failed to marshal outbound frame")
	ErrWriteTimeout     = errors.New("write timeout")
)
