package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tickwise/tickwise/internal/domain"
	"github.com/tickwise/tickwise/internal/metrics"
)

// Result is the outcome of a single quota check.
type Result struct {
	Allowed      bool
	DailyLimit   int64
	RequestsMade int64
	Remaining    int64
	ResetAt      time.Time
}

// Status aggregates a user's counters across endpoints for the current day.
type Status struct {
	Tier          domain.SubscriptionTier
	DailyLimit    int64
	RequestsToday int64
	Remaining     int64
	ResetAt       time.Time
	Endpoints     map[string]int64
}

// Limiter enforces per-tier daily quotas on top of a CounterStore.
//
// The counter is incremented before the limit comparison, so the request that
// pushes the count over the limit is itself recorded and denied. Every check
// durably records an attempt regardless of outcome, and counts keep
// accumulating past the limit.
type Limiter struct {
	store        CounterStore
	logger       *slog.Logger
	storeTimeout time.Duration
}

// NewLimiter creates a Limiter. storeTimeout bounds each store round trip;
// zero means 3 seconds.
func NewLimiter(store CounterStore, logger *slog.Logger, storeTimeout time.Duration) *Limiter {
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	return &Limiter{
		store:        store,
		logger:       logger,
		storeTimeout: storeTimeout,
	}
}

// windowBounds returns midnight UTC of the current day and of the next day.
func windowBounds(now time.Time) (start, reset time.Time) {
	now = now.UTC()
	start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// Check records one request attempt and decides whether it is within the
// tier's daily quota for the endpoint.
//
// If the counter store is unavailable the limiter fails open: the request is
// allowed with a degraded status payload and the fault is logged, never
// surfaced to the caller. Availability of the data API is prioritized over
// strict enforcement during storage outages.
func (l *Limiter) Check(ctx context.Context, userID uuid.UUID, tier domain.SubscriptionTier, endpoint string) Result {
	windowStart, resetAt := windowBounds(time.Now())
	limit := domain.PolicyFor(tier).DailyQuota

	storeCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	count, err := l.store.IncrementAndGet(storeCtx, userID, endpoint, windowStart)
	if err != nil {
		l.logger.Warn("quota store unavailable, failing open",
			"user_id", userID,
			"endpoint", endpoint,
			"error", err,
		)
		metrics.RateLimitDecisions.WithLabelValues(endpoint, "fail_open").Inc()
		return Result{
			Allowed:      true,
			DailyLimit:   limit,
			RequestsMade: 0,
			Remaining:    limit,
			ResetAt:      resetAt,
		}
	}

	allowed := count <= limit
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	if allowed {
		metrics.RateLimitDecisions.WithLabelValues(endpoint, "allowed").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues(endpoint, "denied").Inc()
		l.logger.Warn("rate limit exceeded",
			"user_id", userID,
			"endpoint", endpoint,
			"count", count,
			"limit", limit,
		)
	}

	return Result{
		Allowed:      allowed,
		DailyLimit:   limit,
		RequestsMade: count,
		Remaining:    remaining,
		ResetAt:      resetAt,
	}
}

// StatusFor reports the user's aggregate usage for the current UTC day.
// A store fault degrades to a zeroed payload rather than an error.
func (l *Limiter) StatusFor(ctx context.Context, userID uuid.UUID, tier domain.SubscriptionTier) Status {
	windowStart, resetAt := windowBounds(time.Now())
	limit := domain.PolicyFor(tier).DailyQuota

	storeCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	counts, err := l.store.Snapshot(storeCtx, userID, windowStart)
	if err != nil {
		l.logger.Warn("quota store unavailable for status",
			"user_id", userID,
			"error", err,
		)
		return Status{
			Tier:       tier,
			DailyLimit: limit,
			ResetAt:    resetAt,
			Endpoints:  map[string]int64{},
		}
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	remaining := limit - total
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		Tier:          tier,
		DailyLimit:    limit,
		RequestsToday: total,
		Remaining:     remaining,
		ResetAt:       resetAt,
		Endpoints:     counts,
	}
}
