// Package cache adds read-aside caching to a push.Repository.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/pushgarden/internal/domain"
	"github.com/bissquit/pushgarden/internal/pkg/metrics"
	"github.com/bissquit/pushgarden/internal/push"
)

// DefaultTTL bounds how long a cached subscription list may be served.
const DefaultTTL = 5 * time.Minute

// ErrCacheMiss is returned by CacheClient.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// CacheClient is the subset of cache commands the repository needs.
type CacheClient interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Repository caches GetActiveSubscriptions per user and invalidates on every
// write for that user. A failing cache degrades to the backing store.
type Repository struct {
	store push.Repository
	cache CacheClient
	ttl   time.Duration
}

var _ push.Repository = (*Repository)(nil)

// NewRepository wraps store with cache.
func NewRepository(store push.Repository, cache CacheClient, ttl time.Duration) *Repository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Repository{store: store, cache: cache, ttl: ttl}
}

// GetActiveSubscriptions serves from cache, falling back to the store.
func (r *Repository) GetActiveSubscriptions(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	key := cacheKey(userID)

	var cached []domain.PushSubscription
	err := r.cache.Get(ctx, key, &cached)
	switch {
	case err == nil:
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return cached, nil
	case errors.Is(err, ErrCacheMiss):
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	default:
		metrics.CacheRequests.WithLabelValues("error").Inc()
		slog.Warn("subscription cache read failed", "user_id", userID, "error", err)
	}

	subs, err := r.store.GetActiveSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, subs, r.ttl); err != nil {
		slog.Warn("subscription cache write failed", "user_id", userID, "error", err)
	}
	return subs, nil
}

// SaveSubscription writes through to the store and drops the cached entry.
func (r *Repository) SaveSubscription(ctx context.Context, userID string, sub domain.SubscriptionInput) (string, error) {
	id, err := r.store.SaveSubscription(ctx, userID, sub)
	if err != nil {
		return "", err
	}
	r.invalidate(ctx, userID)
	return id, nil
}

// DeactivateSubscription writes through to the store and drops the cached entry.
func (r *Repository) DeactivateSubscription(ctx context.Context, userID, endpoint string) error {
	if err := r.store.DeactivateSubscription(ctx, userID, endpoint); err != nil {
		return err
	}
	r.invalidate(ctx, userID)
	return nil
}

// ListAllActiveSubscriptions always reads the store.
func (r *Repository) ListAllActiveSubscriptions(ctx context.Context) ([]domain.UserSubscription, error) {
	return r.store.ListAllActiveSubscriptions(ctx)
}

func (r *Repository) invalidate(ctx context.Context, userID string) {
	if err := r.cache.Del(ctx, cacheKey(userID)); err != nil {
		slog.Warn("subscription cache invalidation failed", "user_id", userID, "error", err)
	}
}

func cacheKey(userID string) string {
	return fmt.Sprintf("pushgarden:subscriptions:%s", userID)
}
