package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/pushgarden/internal/domain"
)

// memoryRepository is an in-memory Repository with single-active semantics.
type memoryRepository struct {
	mu       sync.Mutex
	rows     []domain.PushSubscription
	inactive map[string]bool // inactive users
	nextID   int

	getErr      error
	listErr     error
	saveErr     error
	getCalls    int
	deactivated []string
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{inactive: make(map[string]bool)}
}

func (m *memoryRepository) SaveSubscription(_ context.Context, userID string, sub domain.SubscriptionInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return "", m.saveErr
	}
	for i := range m.rows {
		if m.rows[i].UserID == userID {
			m.rows[i].IsActive = false
		}
	}
	m.nextID++
	id := fmt.Sprintf("sub-%d", m.nextID)
	m.rows = append(m.rows, domain.PushSubscription{
		ID:        id,
		UserID:    userID,
		Endpoint:  sub.Endpoint,
		Keys:      sub.Keys,
		IsActive:  true,
		CreatedAt: time.Now(),
	})
	return id, nil
}

// addActive inserts an active row without retiring others, to model several
// devices for fan-out tests.
func (m *memoryRepository) addActive(userID, endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.rows = append(m.rows, domain.PushSubscription{
		ID:       fmt.Sprintf("sub-%d", m.nextID),
		UserID:   userID,
		Endpoint: endpoint,
		Keys:     domain.SubscriptionKeys{P256dh: "p256dh", Auth: "auth"},
		IsActive: true,
	})
}

func (m *memoryRepository) GetActiveSubscriptions(_ context.Context, userID string) ([]domain.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []domain.PushSubscription
	for _, row := range m.rows {
		if row.UserID == userID && row.IsActive {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryRepository) DeactivateSubscription(_ context.Context, userID, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deactivated = append(m.deactivated, endpoint)
	for i := range m.rows {
		if m.rows[i].UserID == userID && m.rows[i].Endpoint == endpoint {
			m.rows[i].IsActive = false
		}
	}
	return nil
}

func (m *memoryRepository) ListAllActiveSubscriptions(_ context.Context) ([]domain.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.UserSubscription
	for _, row := range m.rows {
		if row.IsActive && !m.inactive[row.UserID] {
			out = append(out, domain.UserSubscription{UserID: row.UserID, Username: row.UserID, Subscription: row})
		}
	}
	return out, nil
}

func (m *memoryRepository) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, row := range m.rows {
		if row.IsActive {
			n++
		}
	}
	return n
}

// goneError mimics a transport error for a removed endpoint.
type goneError struct{}

func (goneError) Error() string        { return "subscription gone" }
func (goneError) Is(target error) bool { return target == ErrSubscriptionGone }

// fakeSender returns a per-endpoint error and records every call.
type fakeSender struct {
	mu       sync.Mutex
	errs     map[string]error
	calls    []string
	payloads [][]byte
	delay    time.Duration
}

func newFakeSender() *fakeSender {
	return &fakeSender{errs: make(map[string]error)}
}

func (f *fakeSender) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	f.mu.Lock()
	f.calls = append(f.calls, sub.Endpoint)
	f.payloads = append(f.payloads, payload)
	err := f.errs[sub.Endpoint]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var errTransient = errors.New("push service unavailable")

func enabledConfig() DispatcherConfig {
	return DispatcherConfig{
		Subscriber: "mailto:ops@example.com",
		PublicKey:  "public-key",
		PrivateKey: "private-key",
	}
}
