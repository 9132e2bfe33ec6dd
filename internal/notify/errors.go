package notify

import "errors"

// Fan-out error types.
var (
	ErrDispatcherNotRunning = errors.New("dispatcher is not running")
	ErrDispatchQueueFull    = errors.New("dispatch queue is full")
)
