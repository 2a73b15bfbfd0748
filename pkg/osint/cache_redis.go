package osint

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trustlens/trustlens/pkg/models"
)

// redisKeyPrefix namespaces cache keys in a shared redis instance.
const redisKeyPrefix = "trustlens:osint:"

// RedisCache is the shared cache backend for deployments where multiple
// supervisors (or many audit processes) should reuse source results.
// All operations are best-effort: redis being down degrades to cache
// misses, never to audit failures.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to redis at addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisCache{client: client}, nil
}

// Get returns a non-expired entry; redis handles expiry via key TTL.
func (c *RedisCache) Get(ctx context.Context, source string, q Query) (*models.SourceVerdict, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+cacheKey(source, q)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("OSINT redis cache read failed", "source", source, "error", err)
		}
		return nil, false
	}
	var v models.SourceVerdict
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// Set stores an entry with the source's TTL.
func (c *RedisCache) Set(ctx context.Context, source string, q Query, v *models.SourceVerdict, ttlSeconds int) {
	if v == nil || ttlSeconds <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	if err := c.client.Set(ctx, redisKeyPrefix+cacheKey(source, q), data, ttl).Err(); err != nil {
		slog.Warn("OSINT redis cache write failed", "source", source, "error", err)
	}
}

// Close releases the redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
