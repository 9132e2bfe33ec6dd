package types

import "errors"

// Validation errors surfaced at the boundary before anything is persisted.
var (
	ErrInvalidUserID      = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrEmptyContent       = errors.New("message content cannot be empty")
	ErrContentTooLarge    = errors.New("message content exceeds 64KB limit")
	ErrInvalidMessageType = errors.New("message type must be 'text' or 'meeting_link'")
	ErrInvalidLink        = errors.New("meeting link must be an absolute http(s) URL")
	ErrInvalidEventKind   = errors.New("unknown event kind")
	ErrInvalidPayload     = errors.New("malformed event payload")
	ErrInvalidChannel     = errors.New("unknown notification channel")
	ErrInvalidPriority    = errors.New("priority must be low, normal or high")
	ErrInvalidType        = errors.New("unknown notification type")
	ErrMissingSessionID   = errors.New("session id is required")
	ErrMissingTime        = errors.New("proposed time is required")
)
