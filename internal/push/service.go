package push

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bissquit/pushgarden/internal/domain"
)

// Test notification defaults.
const (
	testTitle = "Test Notification"
	testBody  = "This is a test push notification"
)

// Status is a user's view of the push feature.
type Status struct {
	Enabled    bool `json:"enabled"`
	Subscribed bool `json:"subscribed"`
}

// Service exposes subscription management and dispatch to the HTTP layer.
type Service struct {
	repo       Repository
	dispatcher *Dispatcher
}

// NewService creates a new push service.
func NewService(repo Repository, dispatcher *Dispatcher) *Service {
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
	}
}

// VAPIDPublicKey returns the key clients need to subscribe.
func (s *Service) VAPIDPublicKey() (string, error) {
	if !s.dispatcher.IsEnabled() {
		return "", ErrPushDisabled
	}
	return s.dispatcher.VAPIDPublicKey(), nil
}

// Subscribe registers the subscription as the user's only active one.
func (s *Service) Subscribe(ctx context.Context, userID string, input domain.SubscriptionInput) (string, error) {
	id, err := s.repo.SaveSubscription(ctx, userID, input)
	if err != nil {
		return "", fmt.Errorf("save subscription: %w", err)
	}

	slog.Info("push subscription saved", "user_id", userID, "subscription_id", id)
	return id, nil
}

// Unsubscribe deactivates the user's subscription for endpoint.
func (s *Service) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	if err := s.repo.DeactivateSubscription(ctx, userID, endpoint); err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}

	slog.Info("push subscription removed", "user_id", userID)
	return nil
}

// SendTest sends a test notification to the caller. Unlike regular sends,
// the failure reason is returned to the caller.
func (s *Service) SendTest(ctx context.Context, userID, title, body string) (Result, error) {
	if !s.dispatcher.IsEnabled() {
		return Result{}, ErrPushDisabled
	}
	if title == "" {
		title = testTitle
	}
	if body == "" {
		body = testBody
	}

	result := s.dispatcher.SendToUserResult(ctx, userID, title, body, map[string]any{"test": true})
	if result.OK() {
		return result, nil
	}
	if result.Total == 0 && len(result.Failures) == 0 {
		return result, ErrNoSubscription
	}

	reason := "unknown error"
	if len(result.Failures) > 0 {
		reason = result.Failures[0].Reason
	}
	return result, fmt.Errorf("%w: %s", ErrDeliveryFailed, reason)
}

// Broadcast sends a notification to every active user.
func (s *Service) Broadcast(ctx context.Context, title, body string, data map[string]any) (Result, error) {
	if !s.dispatcher.IsEnabled() {
		return Result{}, ErrPushDisabled
	}
	return s.dispatcher.SendToAllResult(ctx, title, body, data), nil
}

// Status reports whether push is enabled and whether the user is subscribed.
func (s *Service) Status(ctx context.Context, userID string) (Status, error) {
	subs, err := s.repo.GetActiveSubscriptions(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("get subscriptions: %w", err)
	}
	return Status{
		Enabled:    s.dispatcher.IsEnabled(),
		Subscribed: len(subs) > 0,
	}, nil
}
