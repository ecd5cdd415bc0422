// Package push stores browser push subscriptions and delivers Web Push
// notifications to them.
package push

import (
	"context"

	"github.com/bissquit/pushgarden/internal/domain"
)

// Repository is the durable mapping from users to their push endpoints.
//
// The store keeps at most one active subscription per user: saving a new
// subscription retires every earlier one for that user. This is single-device
// semantics. Supporting several devices would mean keying uniqueness on
// (user_id, endpoint) and delivering to every active row.
type Repository interface {
	// SaveSubscription deactivates the user's active subscriptions and inserts
	// the new one in a single transaction. Returns the new subscription ID.
	SaveSubscription(ctx context.Context, userID string, sub domain.SubscriptionInput) (string, error)

	// GetActiveSubscriptions returns the user's active subscriptions.
	GetActiveSubscriptions(ctx context.Context, userID string) ([]domain.PushSubscription, error)

	// DeactivateSubscription marks the subscription inactive. Unknown or
	// already inactive subscriptions are not an error.
	DeactivateSubscription(ctx context.Context, userID, endpoint string) error

	// ListAllActiveSubscriptions returns active subscriptions of active users.
	ListAllActiveSubscriptions(ctx context.Context) ([]domain.UserSubscription, error)
}

// Sender delivers an encoded payload to one subscription.
//
// Implementations report a permanently removed endpoint with an error that
// matches ErrSubscriptionGone.
type Sender interface {
	Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error
}
