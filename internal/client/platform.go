// Package client drives the subscription lifecycle on the receiving side:
// capability checks, permission, platform subscription and server
// registration.
package client

import "context"

// Permission is the platform notification permission.
type Permission string

// Permission values.
const (
	PermissionDefault Permission = "default" // not asked yet
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Platform is the runtime hosting the background notification handler.
type Platform interface {
	SupportsBackgroundRegistration() bool
	SupportsPush() bool
	SupportsNotifications() bool

	// Permission returns the current permission without prompting.
	Permission() Permission
	// RequestPermission prompts the user.
	RequestPermission(ctx context.Context) (Permission, error)

	// Ready blocks until the background registration is active.
	Ready(ctx context.Context) (Registration, error)
}

// SubscribeOptions are passed to the platform push subscribe call.
type SubscribeOptions struct {
	UserVisibleOnly      bool
	ApplicationServerKey []byte
}

// Registration is an active background registration.
type Registration interface {
	Subscribe(ctx context.Context, opts SubscribeOptions) (Handle, error)
	// Current returns the existing subscription, or nil when there is none.
	Current(ctx context.Context) (Handle, error)
}

// Keys are the encryption keys of a platform subscription, URL-safe base64.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Handle is a platform push subscription.
type Handle interface {
	Endpoint() string
	Keys() Keys
	// Unsubscribe revokes the subscription with the push service.
	Unsubscribe(ctx context.Context) (bool, error)
}
