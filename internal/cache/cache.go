// Package cache provides a Redis-backed TTL cache used to memoize
// expensive query-expansion results. Caching is an optimization, never a
// correctness dependency: every operation degrades to a miss on failure
// so callers fall back to direct computation.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL is the expiry applied when Set is called without an explicit
// TTL.
const DefaultTTL = 86400 * time.Second

// Config holds Redis connection settings.
type Config struct {
	Addr       string        `yaml:"addr" mapstructure:"addr"`
	Password   string        `yaml:"password" mapstructure:"password"`
	DB         int           `yaml:"db" mapstructure:"db"`
	DefaultTTL time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
}

// Cache wraps a Redis client with JSON serialization and soft-fail
// semantics. The connection is established lazily by go-redis and reused.
type Cache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// New creates a Cache from connection settings.
func New(cfg Config) *Cache {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		defaultTTL: ttl,
	}
}

// NewWithClient wraps an existing Redis client (used by tests).
func NewWithClient(client *redis.Client, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Cache{client: client, defaultTTL: defaultTTL}
}

// Set stores value under key with the given TTL (default when ttl <= 0).
// Returns false on serialization or connection failure.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		zap.L().Warn("cache: marshal failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		zap.L().Warn("cache: set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Get reads key into dest. Returns false on miss, expiry, or any error;
// reads after expiry always report a miss, never a stale value.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		zap.L().Warn("cache: get failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		zap.L().Warn("cache: unmarshal failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Delete removes key. Returns false on connection failure.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	if err := c.client.Del(ctx, key).Err(); err != nil && err != redis.Nil {
		zap.L().Warn("cache: delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Exists reports whether key is present and unexpired.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		zap.L().Warn("cache: exists failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

// TTL returns the remaining lifetime of key, or false when the key is
// missing, has no expiry, or the lookup failed.
func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, bool) {
	d, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		zap.L().Warn("cache: ttl failed", zap.String("key", key), zap.Error(err))
		return 0, false
	}
	if d < 0 {
		return 0, false
	}
	return d, true
}

// ClearPattern deletes all keys matching the glob pattern and returns the
// count removed. Uses SCAN so large keyspaces don't block the server.
func (c *Cache) ClearPattern(ctx context.Context, pattern string) int {
	var deleted int
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err == nil {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		zap.L().Warn("cache: scan failed", zap.String("pattern", pattern), zap.Error(err))
	}
	return deleted
}

// CountPattern counts keys matching the glob pattern without touching
// them.
func (c *Cache) CountPattern(ctx context.Context, pattern string) int {
	var count int
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		zap.L().Warn("cache: scan failed", zap.String("pattern", pattern), zap.Error(err))
	}
	return count
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
