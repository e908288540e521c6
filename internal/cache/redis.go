package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tickwise/tickwise/internal/metrics"
)

// RedisCache stores responses in Redis. All faults are absorbed: a read
// error is a miss, a write error is a no-op, both are logged.
type RedisCache struct {
	client  *redis.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewRedisCache connects to the Redis instance named by url
// (redis://host:port/db). The connection itself is lazy; a dead backend
// surfaces as misses, not as a startup failure.
func NewRedisCache(url string, logger *slog.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	return &RedisCache{
		client:  redis.NewClient(opt),
		logger:  logger,
		timeout: 3 * time.Second,
	}, nil
}

func (c *RedisCache) Get(ctx context.Context, fingerprint string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := c.client.Get(ctx, fingerprint).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.CacheRequests.WithLabelValues("get", "error").Inc()
			c.logger.Warn("cache get failed, treating as miss", "error", err)
		} else {
			metrics.CacheRequests.WithLabelValues("get", "miss").Inc()
		}
		return nil, false
	}

	metrics.CacheRequests.WithLabelValues("get", "hit").Inc()
	return payload, true
}

func (c *RedisCache) Set(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Set(ctx, fingerprint, payload, ttl).Err(); err != nil {
		metrics.CacheRequests.WithLabelValues("set", "error").Inc()
		c.logger.Warn("cache set failed", "error", err)
		return
	}
	metrics.CacheRequests.WithLabelValues("set", "ok").Inc()
}

func (c *RedisCache) Delete(ctx context.Context, fingerprint string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Del(ctx, fingerprint).Err(); err != nil {
		c.logger.Warn("cache delete failed", "error", err)
	}
}

func (c *RedisCache) InvalidatePattern(ctx context.Context, pattern string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var deleted int
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("cache invalidate failed", "key", iter.Val(), "error", err)
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("cache scan failed during invalidation", "pattern", pattern, "error", err)
	}
	if deleted > 0 {
		c.logger.Debug("cache entries invalidated", "pattern", pattern, "count", deleted)
	}
}

func (c *RedisCache) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Ping(ctx).Err() == nil
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
