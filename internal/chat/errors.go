package chat

import "errors"

// Pipeline-specific error types.
var (
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrSelfConversation  = errors.New("cannot message yourself")
)
