// Package cache provides a short-code resolution cache in front of the store.
//
// The cache is purely an accelerator for join-link lookups: resolution always
// re-checks the persisted token row, so stale entries are harmless.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ShortCodeCache maps short codes to full token ids.
type ShortCodeCache interface {
	// Get returns the token id and whether the code was present.
	Get(ctx context.Context, code string) (string, bool, error)
	// Set stores a mapping with a TTL (normally expiresAt-now).
	Set(ctx context.Context, code, tokenID string, ttl time.Duration) error
	// Close releases the underlying client.
	Close() error
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache creates a Redis-backed cache from a URL
// (e.g. redis://:pass@host:6379/0). Pings on startup to fail fast.
func NewRedisCache(redisURL, prefix string) (ShortCodeCache, error) {
	if prefix == "" {
		prefix = "cl:sc:"
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &redisCache{rdb: rdb, prefix: prefix}, nil
}

func (c *redisCache) Get(ctx context.Context, code string) (string, bool, error) {
	id, err := c.rdb.Get(ctx, c.prefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (c *redisCache) Set(ctx context.Context, code, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, c.prefix+code, tokenID, ttl).Err()
}

func (c *redisCache) Close() error { return c.rdb.Close() }

// Noop is used when no Redis is configured; every lookup is a miss.
type Noop struct{}

func (Noop) Get(context.Context, string) (string, bool, error) { return "", false, nil }

func (Noop) Set(context.Context, string, string, time.Duration) error { return nil }

func (Noop) Close() error { return nil }
