// Package ratelimit implements the daily request quota engine: durable
// per-user per-endpoint counters over UTC calendar days, a tier-aware
// limiter, and a retention sweep for aged counter rows.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterStore is the durable counter backend. Increments for the same
// (user, endpoint, day) key must be atomic increment-and-read operations;
// a separate read-then-write would under-count under concurrency.
type CounterStore interface {
	// IncrementAndGet bumps the counter for the key and returns the
	// post-increment count. The row is created with count 1 on first use.
	IncrementAndGet(ctx context.Context, userID uuid.UUID, endpoint string, windowStart time.Time) (int64, error)

	// Snapshot returns endpoint counts for the user on the given day.
	// It may lag concurrent increments; status reporting is informational.
	Snapshot(ctx context.Context, userID uuid.UUID, windowStart time.Time) (map[string]int64, error)

	// PurgeOlderThan deletes counter rows whose window started before cutoff
	// and returns the number deleted. Best effort.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PostgresStore persists counters in the rate_limits table. The upsert is a
// single statement, so the increment is atomic per key without any
// in-process locking.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a CounterStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) IncrementAndGet(ctx context.Context, userID uuid.UUID, endpoint string, windowStart time.Time) (int64, error) {
	const q = `
		INSERT INTO rate_limits (id, user_id, endpoint, requests_count, window_start)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (user_id, endpoint, window_start)
		DO UPDATE SET requests_count = rate_limits.requests_count + 1
		RETURNING requests_count`

	var count int64
	err := s.pool.QueryRow(ctx, q, uuid.New(), userID, endpoint, windowStart).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *PostgresStore) Snapshot(ctx context.Context, userID uuid.UUID, windowStart time.Time) (map[string]int64, error) {
	const q = `
		SELECT endpoint, requests_count
		FROM rate_limits
		WHERE user_id = $1 AND window_start >= $2`

	rows, err := s.pool.Query(ctx, q, userID, windowStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var endpoint string
		var count int64
		if err := rows.Scan(&endpoint, &count); err != nil {
			return nil, err
		}
		counts[endpoint] = count
	}
	return counts, rows.Err()
}

func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rate_limits WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MemoryStore is an in-process CounterStore for tests and single-node
// development. Production deployments use PostgresStore so counters are
// shared across worker processes.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[memoryKey]int64
}

type memoryKey struct {
	userID      uuid.UUID
	endpoint    string
	windowStart time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[memoryKey]int64)}
}

func (s *MemoryStore) IncrementAndGet(_ context.Context, userID uuid.UUID, endpoint string, windowStart time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey{userID: userID, endpoint: endpoint, windowStart: windowStart}
	s.counts[key]++
	return s.counts[key], nil
}

func (s *MemoryStore) Snapshot(_ context.Context, userID uuid.UUID, windowStart time.Time) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64)
	for key, n := range s.counts {
		if key.userID == userID && !key.windowStart.Before(windowStart) {
			counts[key.endpoint] += n
		}
	}
	return counts, nil
}

func (s *MemoryStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key := range s.counts {
		if key.windowStart.Before(cutoff) {
			delete(s.counts, key)
			deleted++
		}
	}
	return deleted, nil
}
