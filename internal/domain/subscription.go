package domain

import "time"

// SubscriptionKeys holds the encryption material issued with a push subscription.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// SubscriptionInput is what a client registers: the endpoint and its keys.
type SubscriptionInput struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

// PushSubscription is a stored push registration.
// Rows are never deleted; IsActive=false marks a retired registration.
type PushSubscription struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Endpoint  string           `json:"endpoint"`
	Keys      SubscriptionKeys `json:"keys"`
	IsActive  bool             `json:"is_active"`
	CreatedAt time.Time        `json:"created_at"`
}

// UserSubscription is an active subscription joined with its (active) owner.
type UserSubscription struct {
	UserID       string
	Username     string
	Subscription PushSubscription
}
