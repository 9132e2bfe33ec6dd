package notify

import (
	"context"
	"log"

	"skillhub/pkg/types"
)

// LogPushDeliverer stands in for the external push transport. The real
// transport is an external collaborator; this implementation only records
// that a dispatch happened.
type LogPushDeliverer struct{}

func (LogPushDeliverer) DeliverPush(ctx context.Context, user *types.User, payload map[string]interface{}) error {
	log.Printf("notify: push -> %s: %v", user.ID, payload["title"])
	return nil
}

// LogEmailDeliverer stands in for the external email transport.
type LogEmailDeliverer struct{}

func (LogEmailDeliverer) DeliverEmail(ctx context.Context, user *types.User, payload map[string]interface{}) error {
	log.Printf("notify: email -> %s <%s>: %v", user.ID, user.Email, payload["title"])
	return nil
}
