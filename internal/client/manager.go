package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// State is the subscription lifecycle state.
type State string

// Lifecycle states.
const (
	StateUnsubscribed        State = "unsubscribed"
	StatePermissionRequested State = "permission-requested"
	StatePermissionGranted   State = "permission-granted"
	StatePermissionDenied    State = "permission-denied"
	StateSubscribed          State = "subscribed"
)

// Test notification defaults.
const (
	DefaultTestTitle = "Test Notification"
	DefaultTestBody  = "This is a test push notification"
)

// Status is a read-only snapshot of the manager.
type Status struct {
	Supported  bool       `json:"supported"`
	Permission Permission `json:"permission"`
	Subscribed bool       `json:"subscribed"`
}

// Manager owns the local subscription handle. Safe for concurrent use.
type Manager struct {
	platform Platform
	server   Server
	logger   *slog.Logger

	mu     sync.Mutex
	state  State
	handle Handle
}

// NewManager creates a manager in StateUnsubscribed.
func NewManager(platform Platform, server Server) *Manager {
	return &Manager{
		platform: platform,
		server:   server,
		logger:   slog.Default().With("component", "push-client"),
		state:    StateUnsubscribed,
	}
}

// CheckSupport returns ErrNotSupported naming the first missing capability.
func (m *Manager) CheckSupport() error {
	switch {
	case !m.platform.SupportsBackgroundRegistration():
		return fmt.Errorf("%w: background registration unavailable", ErrNotSupported)
	case !m.platform.SupportsPush():
		return fmt.Errorf("%w: push messaging unavailable", ErrNotSupported)
	case !m.platform.SupportsNotifications():
		return fmt.Errorf("%w: notification display unavailable", ErrNotSupported)
	}
	return nil
}

// RequestPermission returns true when notifications may be shown. A
// permanently denied permission fails with ErrPermissionDenied without
// prompting; an unanswered one triggers the platform prompt.
func (m *Manager) RequestPermission(ctx context.Context) (bool, error) {
	if err := m.CheckSupport(); err != nil {
		return false, err
	}

	switch m.platform.Permission() {
	case PermissionGranted:
		m.setState(StatePermissionGranted)
		return true, nil
	case PermissionDenied:
		m.setState(StatePermissionDenied)
		return false, ErrPermissionDenied
	}

	m.setState(StatePermissionRequested)
	perm, err := m.platform.RequestPermission(ctx)
	if err != nil {
		m.setState(StateUnsubscribed)
		return false, fmt.Errorf("request permission: %w", err)
	}

	if perm != PermissionGranted {
		m.setState(StatePermissionDenied)
		return false, nil
	}
	m.setState(StatePermissionGranted)
	return true, nil
}

// Subscribe creates a platform subscription and registers it with the
// server. The handle is kept only when every step succeeded; each failure is
// returned as a *StepError.
func (m *Manager) Subscribe(ctx context.Context) (Handle, error) {
	m.logger.Info("starting push subscription")

	if err := m.CheckSupport(); err != nil {
		return nil, &StepError{Step: StepSupport, Err: err}
	}

	granted, err := m.RequestPermission(ctx)
	if err != nil {
		return nil, &StepError{Step: StepPermission, Err: err}
	}
	if !granted {
		return nil, &StepError{Step: StepPermission, Err: ErrPermissionNotGranted}
	}

	reg, err := m.platform.Ready(ctx)
	if err != nil {
		return nil, &StepError{Step: StepRegistration, Err: err}
	}

	publicKey, err := m.server.VAPIDPublicKey(ctx)
	if err != nil {
		return nil, &StepError{Step: StepFetchKey, Err: err}
	}

	serverKey, err := DecodeApplicationServerKey(publicKey)
	if err != nil {
		return nil, &StepError{Step: StepDecodeKey, Err: err}
	}

	handle, err := reg.Subscribe(ctx, SubscribeOptions{
		UserVisibleOnly:      true,
		ApplicationServerKey: serverKey,
	})
	if err != nil {
		return nil, &StepError{Step: StepPlatformSubscribe, Err: err}
	}

	if err := m.server.Subscribe(ctx, handle.Endpoint(), handle.Keys()); err != nil {
		// Revoke so a later Initialize does not adopt a subscription the
		// server never stored.
		if _, revokeErr := handle.Unsubscribe(context.WithoutCancel(ctx)); revokeErr != nil {
			m.logger.Warn("failed to revoke unregistered subscription", "error", revokeErr)
		}
		return nil, &StepError{Step: StepServerRegister, Err: err}
	}

	m.mu.Lock()
	m.handle = handle
	m.state = StateSubscribed
	m.mu.Unlock()

	m.logger.Info("push subscription registered")
	return handle, nil
}

// Unsubscribe revokes the platform subscription, then deactivates it on the
// server. Without a local handle it succeeds immediately. The handle is
// cleared once the platform revoke succeeded, even if the server call fails.
func (m *Manager) Unsubscribe(ctx context.Context) (bool, error) {
	m.mu.Lock()
	handle := m.handle
	m.mu.Unlock()

	if handle == nil {
		return true, nil
	}

	ok, err := handle.Unsubscribe(ctx)
	if err != nil {
		return false, fmt.Errorf("revoke platform subscription: %w", err)
	}
	if !ok {
		return false, nil
	}

	m.mu.Lock()
	if m.handle == handle {
		m.handle = nil
		m.state = StateUnsubscribed
	}
	m.mu.Unlock()

	if err := m.server.Unsubscribe(ctx, handle.Endpoint()); err != nil {
		return true, fmt.Errorf("deactivate subscription on server: %w", err)
	}

	m.logger.Info("push subscription removed")
	return true, nil
}

// Status returns a snapshot. It has no side effects.
func (m *Manager) Status() Status {
	status := Status{Supported: m.CheckSupport() == nil}
	if m.platform.SupportsNotifications() {
		status.Permission = m.platform.Permission()
	}

	m.mu.Lock()
	status.Subscribed = m.handle != nil
	m.mu.Unlock()

	return status
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialize adopts a subscription the platform already holds, e.g. after a
// restart. Returns whether one was found.
func (m *Manager) Initialize(ctx context.Context) (bool, error) {
	if err := m.CheckSupport(); err != nil {
		m.logger.Info("push notifications not supported", "reason", err)
		return false, nil
	}

	reg, err := m.platform.Ready(ctx)
	if err != nil {
		return false, fmt.Errorf("wait for registration: %w", err)
	}

	handle, err := reg.Current(ctx)
	if err != nil {
		return false, fmt.Errorf("get current subscription: %w", err)
	}
	if handle == nil {
		return false, nil
	}

	m.mu.Lock()
	m.handle = handle
	m.state = StateSubscribed
	m.mu.Unlock()

	m.logger.Info("existing push subscription found")
	return true, nil
}

// SendTest asks the server to push a test notification to the caller.
func (m *Manager) SendTest(ctx context.Context, title, body string) error {
	if title == "" {
		title = DefaultTestTitle
	}
	if body == "" {
		body = DefaultTestBody
	}

	if err := m.server.SendTest(ctx, title, body); err != nil {
		return fmt.Errorf("send test notification: %w", err)
	}
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Permission changes do not downgrade an active subscription.
	if m.handle != nil {
		return
	}
	m.state = s
}
