package push

import "errors"

// Store errors.
var (
	// ErrStore wraps every persistence failure returned by a Repository.
	ErrStore = errors.New("subscription store error")
)

// Delivery errors.
var (
	ErrSubscriptionGone = errors.New("push subscription gone")
	ErrPushDisabled     = errors.New("push notifications disabled")
	ErrNoSubscription   = errors.New("no active push subscription")
	ErrDeliveryFailed   = errors.New("push delivery failed")
)
