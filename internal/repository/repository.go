// Package repository is the persistence layer for users and subscriptions.
// Queries are hand-written against pgx; quota counters live in the ratelimit
// package, which owns the rate_limits table exclusively.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tickwise/tickwise/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("repository: not found")

// Queries wraps a connection pool with typed query methods.
type Queries struct {
	pool *pgxpool.Pool
}

// New creates a Queries over the given pool.
func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

const userColumns = `id, username, email, password_hash, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user row and returns the stored record.
func (q *Queries) CreateUser(ctx context.Context, username, email, passwordHash string) (*domain.User, error) {
	const stmt = `
		INSERT INTO users (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	return scanUser(q.pool.QueryRow(ctx, stmt, uuid.New(), username, email, passwordHash))
}

// GetUserByUsername fetches an active user by username.
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	const stmt = `SELECT ` + userColumns + ` FROM users WHERE username = $1 AND is_active`
	return scanUser(q.pool.QueryRow(ctx, stmt, username))
}

// GetUserByID fetches an active user by id.
func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const stmt = `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND is_active`
	return scanUser(q.pool.QueryRow(ctx, stmt, id))
}

// UserExists reports whether a username or email is already taken.
func (q *Queries) UserExists(ctx context.Context, username, email string) (bool, error) {
	const stmt = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)`
	var exists bool
	err := q.pool.QueryRow(ctx, stmt, username, email).Scan(&exists)
	return exists, err
}

const subscriptionColumns = `id, user_id, tier, is_active, expires_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.Tier, &s.IsActive, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSubscription inserts a subscription for a user at the given tier.
func (q *Queries) CreateSubscription(ctx context.Context, userID uuid.UUID, tier domain.SubscriptionTier) (*domain.Subscription, error) {
	const stmt = `
		INSERT INTO subscriptions (id, user_id, tier)
		VALUES ($1, $2, $3)
		RETURNING ` + subscriptionColumns

	return scanSubscription(q.pool.QueryRow(ctx, stmt, uuid.New(), userID, tier))
}

// GetSubscriptionByUserID fetches the user's active subscription.
func (q *Queries) GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	const stmt = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 AND is_active`
	return scanSubscription(q.pool.QueryRow(ctx, stmt, userID))
}

// UpdateSubscriptionTier moves a subscription to a new tier, optionally
// setting an expiry, and returns the updated record.
func (q *Queries) UpdateSubscriptionTier(ctx context.Context, userID uuid.UUID, tier domain.SubscriptionTier, expiresAt *time.Time) (*domain.Subscription, error) {
	const stmt = `
		UPDATE subscriptions
		SET tier = $2, expires_at = $3, updated_at = now()
		WHERE user_id = $1 AND is_active
		RETURNING ` + subscriptionColumns

	return scanSubscription(q.pool.QueryRow(ctx, stmt, userID, tier, expiresAt))
}
