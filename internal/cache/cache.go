// Package cache provides an optional Redis-backed payload cache. Fetchers
// write successful upstream responses through it and fall back to it when a
// circuit is open, so stale data can still be served during an outage.
//
// The cache is strictly best-effort: Redis being down or unconfigured never
// fails a fetch, it only disables the fallback.
package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "nflmcp:payload:"

// Cache stores raw upstream payloads in Redis with a TTL
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// New connects to Redis at addr. The connection is verified with a ping; on
// failure the cache is still returned so a later Redis recovery picks up
// transparently, but the miss is logged.
func New(addr string, ttl time.Duration, logger *logrus.Logger) *Cache {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis unreachable, cache fallback degraded")
	} else {
		logger.WithField("addr", addr).Info("Payload cache connected")
	}

	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached payload for key, with false on a miss or any Redis error
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Debug("cache read failed")
		return nil, false
	}
	return val, true
}

// Set stores a payload under key with the configured TTL. Errors are logged
// and swallowed.
func (c *Cache) Set(ctx context.Context, key string, payload []byte) {
	if err := c.client.Set(ctx, keyPrefix+key, payload, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Debug("cache write failed")
	}
}

// Close releases the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}
