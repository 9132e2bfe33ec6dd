package negotiation

import "errors"

// Coordinator-specific error types.
var (
	ErrCoordinatorRunning = errors.New("coordinator is already running")
	ErrInvalidStatus      = errors.New("status must be accepted or declined")
)
