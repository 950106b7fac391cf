package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mcp-mesh/gateway-registry/pkg/observability"
)

const redisKeyPrefix = "registry:embedding:"

// RedisCache shares computed embeddings across registry replicas. Errors
// talking to Redis are logged at debug level and treated as misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger observability.Logger
}

// NewRedisCache creates a Redis-backed embedding cache
func NewRedisCache(address string, ttl time.Duration, logger observability.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: address}),
		ttl:    ttl,
		logger: logger,
	}
}

// Get implements Cache.Get
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	payload, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("Redis cache get failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, false
	}

	var vector []float32
	if err := json.Unmarshal(payload, &vector); err != nil {
		c.logger.Debug("Redis cache entry corrupt", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}
	return vector, true
}

// Set implements Cache.Set
func (c *RedisCache) Set(ctx context.Context, key string, vector []float32) {
	payload, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, payload, c.ttl).Err(); err != nil {
		c.logger.Debug("Redis cache set failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Close implements Cache.Close
func (c *RedisCache) Close() error {
	return c.client.Close()
}
