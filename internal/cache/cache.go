// Package cache implements the content-addressed response cache: a pure
// memoization layer over deterministic computations, keyed by a canonical
// fingerprint of the request parameters.
//
// Every operation is fail-soft. A cache that is down, slow, or misbehaving
// degrades to a permanent miss; it never fails the caller.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is the horizon after which entries are logically absent unless
// the caller overrides it per entry.
const DefaultTTL = 5 * time.Minute

// Cache is the response cache contract. Implementations own entry lifecycle
// exclusively; no other component writes entries.
type Cache interface {
	// Get returns the cached payload for a fingerprint, or ok=false on miss.
	// Backend faults degrade to a miss.
	Get(ctx context.Context, fingerprint string) (payload []byte, ok bool)

	// Set stores a payload under the fingerprint with the given TTL.
	// ttl <= 0 uses DefaultTTL. Faults are logged and swallowed.
	Set(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration)

	// Delete removes a single entry. Best effort.
	Delete(ctx context.Context, fingerprint string)

	// InvalidatePattern removes all entries whose key matches the glob
	// pattern (e.g. "stock_data:*"). Best effort.
	InvalidatePattern(ctx context.Context, pattern string)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) bool
}
