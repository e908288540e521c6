package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache used in tests and when no REDIS_URL is
// configured. TTL semantics match the Redis implementation: an expired entry
// is logically absent even if it has not been collected yet.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, fingerprint string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.payload, true
}

func (c *MemoryCache) Set(_ context.Context, fingerprint string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = memoryEntry{
		payload:   payload,
		expiresAt: c.now().Add(ttl),
	}
}

func (c *MemoryCache) Delete(_ context.Context, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fingerprint)
}

func (c *MemoryCache) InvalidatePattern(_ context.Context, pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryCache) Ping(context.Context) bool {
	return true
}
