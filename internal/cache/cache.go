// Package cache provides a Redis-backed response cache for the HTTP
// proximity endpoints (/addresses and /buildings), letting repeated
// identical requests skip the spatial index entirely. /intersect
// responses are not cached.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ResponseCache wraps a go-redis client with the JSON encode/decode
// and key-prefixing a query handler needs; it does not attempt the
// teacher's multi-level (memory/disk/db) cache hierarchy, since the
// query engine serves from in-memory records and indexes and needs
// only one fast layer in front of them.
type ResponseCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// New connects to Redis at addr and verifies the connection with a
// ping against a short timeout.
func New(addr string, logger *zap.Logger) (*ResponseCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connect to redis at %q: %w", addr, err)
	}

	logger.Info("response cache connected", zap.String("addr", addr))
	return &ResponseCache{client: client, keyPrefix: "geoindex:query:", logger: logger}, nil
}

func (c *ResponseCache) buildKey(key string) string {
	return c.keyPrefix + key
}

// Get fetches and unmarshals a cached response into dest. Returns
// (false, nil) on a clean miss, distinct from a Redis error.
func (c *ResponseCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, c.buildKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("cache: get %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return true, nil
}

// Set marshals value as JSON and stores it with the given TTL.
func (c *ResponseCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	if err := c.client.Set(ctx, c.buildKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %q: %w", key, err)
	}
	return nil
}

// HealthCheck pings Redis, for the /health endpoint's dependency check.
func (c *ResponseCache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: health check: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *ResponseCache) Close() error {
	return c.client.Close()
}
