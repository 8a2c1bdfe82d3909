package backend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-civic-dashboard/components/portal"
)

const defaultRedisPrefix = "civic:"

// RedisCache shares option lists across portal instances. Errors degrade to
// cache misses.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var _ portal.ResponseCache = (*RedisCache)(nil)

// RedisOptions configures a RedisCache.
type RedisOptions struct {
	Prefix string
	TTL    time.Duration
	Logger *slog.Logger
}

// OpenRedis connects to addr. An empty addr yields nil.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// NewRedisCache wraps a redis client.
func NewRedisCache(client redis.Cmdable, opts RedisOptions) *RedisCache {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Get implements portal.ResponseCache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.DebugContext(ctx, "redis cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return value, true
}

// Set implements portal.ResponseCache.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		c.logger.DebugContext(ctx, "redis cache set failed", "key", key, "error", err)
	}
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("backend: redis client not configured")
	}
	return c.client.Ping(ctx).Err()
}
