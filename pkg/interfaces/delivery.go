package interfaces

import (
	"context"

	"skillhub/pkg/types"
)

// PushDeliverer is the external push transport collaborator. Failures are
// logged by the dispatcher and never roll back the persisted record; any
// retry policy lives inside the collaborator, not the hub.
type PushDeliverer interface {
	DeliverPush(ctx context.Context, user *types.User, payload map[string]interface{}) error
}

// EmailDeliverer is the external email transport collaborator.
type EmailDeliverer interface {
	DeliverEmail(ctx context.Context, user *types.User, payload map[string]interface{}) error
}
