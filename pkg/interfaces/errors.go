package interfaces

import "errors"

// Common errors shared across component boundaries.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserInactive         = errors.New("user account is inactive")
	ErrSessionNotFound      = errors.New("session not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrUnauthorized         = errors.New("unauthorized access")
	ErrMissingCredential    = errors.New("missing credential")
	ErrInvalidCredential    = errors.New("invalid credential")
	ErrExpiredCredential    = errors.New("expired credential")
)
