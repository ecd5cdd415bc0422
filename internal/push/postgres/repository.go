// Package postgres provides the PostgreSQL implementation of push.Repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/pushgarden/internal/domain"
	"github.com/bissquit/pushgarden/internal/push"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements push.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

var _ push.Repository = (*Repository)(nil)

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// SaveSubscription replaces the user's active subscription.
// Concurrent saves for the same user are serialized by a transaction scoped
// advisory lock keyed on the user id.
func (r *Repository) SaveSubscription(ctx context.Context, userID string, sub domain.SubscriptionInput) (string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", storeError("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return "", storeError("lock user subscriptions", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE push_subscriptions
		SET is_active = FALSE
		WHERE user_id = $1 AND is_active
	`, userID); err != nil {
		return "", storeError("deactivate previous subscriptions", err)
	}

	id := uuid.NewString()
	if _, err := tx.Exec(ctx, `
		INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
	`, id, userID, sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth); err != nil {
		return "", storeError("insert subscription", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", storeError("commit transaction", err)
	}

	return id, nil
}

// GetActiveSubscriptions returns the user's active subscriptions.
func (r *Repository) GetActiveSubscriptions(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, endpoint, p256dh, auth, is_active, created_at
		FROM push_subscriptions
		WHERE user_id = $1 AND is_active
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, storeError("query subscriptions", err)
	}

	subs, err := pgx.CollectRows(rows, scanSubscription)
	if err != nil {
		return nil, storeError("scan subscriptions", err)
	}
	return subs, nil
}

// DeactivateSubscription marks the matching subscription inactive.
func (r *Repository) DeactivateSubscription(ctx context.Context, userID, endpoint string) error {
	if _, err := r.db.Exec(ctx, `
		UPDATE push_subscriptions
		SET is_active = FALSE
		WHERE user_id = $1 AND endpoint = $2 AND is_active
	`, userID, endpoint); err != nil {
		return storeError("deactivate subscription", err)
	}
	return nil
}

// ListAllActiveSubscriptions returns active subscriptions of active users.
func (r *Repository) ListAllActiveSubscriptions(ctx context.Context) ([]domain.UserSubscription, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ps.id, ps.user_id, ps.endpoint, ps.p256dh, ps.auth, ps.is_active, ps.created_at, u.username
		FROM push_subscriptions ps
		JOIN users u ON u.id = ps.user_id
		WHERE ps.is_active AND u.is_active
		ORDER BY ps.created_at
	`)
	if err != nil {
		return nil, storeError("query subscriptions", err)
	}

	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.UserSubscription, error) {
		var us domain.UserSubscription
		err := row.Scan(
			&us.Subscription.ID,
			&us.Subscription.UserID,
			&us.Subscription.Endpoint,
			&us.Subscription.Keys.P256dh,
			&us.Subscription.Keys.Auth,
			&us.Subscription.IsActive,
			&us.Subscription.CreatedAt,
			&us.Username,
		)
		us.UserID = us.Subscription.UserID
		return us, err
	})
	if err != nil {
		return nil, storeError("scan subscriptions", err)
	}
	return subs, nil
}

// IsActiveUser reports whether the user exists and is active.
func (r *Repository) IsActiveUser(ctx context.Context, userID string) (bool, error) {
	var active bool
	err := r.db.QueryRow(ctx, `SELECT is_active FROM users WHERE id = $1`, userID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeError("query user", err)
	}
	return active, nil
}

func scanSubscription(row pgx.CollectableRow) (domain.PushSubscription, error) {
	var sub domain.PushSubscription
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Endpoint,
		&sub.Keys.P256dh,
		&sub.Keys.Auth,
		&sub.IsActive,
		&sub.CreatedAt,
	)
	return sub, err
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", push.ErrStore, op, err)
}
