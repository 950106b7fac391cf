// Package cache provides embedding caches keyed by a hash of model and
// text. Cache failures are always best effort: a miss or a broken cache
// never fails an embed call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores computed embedding vectors
type Cache interface {
	// Get returns the cached vector for key, if present
	Get(ctx context.Context, key string) ([]float32, bool)

	// Set stores the vector under key, best effort
	Set(ctx context.Context, key string, vector []float32)

	// Close releases cache resources
	Close() error
}

// Key derives the cache key for a model and input text
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// LRUCache is a fixed-size in-process cache
type LRUCache struct {
	inner *lru.Cache[string, []float32]
}

// NewLRUCache creates an in-process LRU cache holding up to size entries
func NewLRUCache(size int) (*LRUCache, error) {
	if size <= 0 {
		size = 4096
	}
	inner, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{inner: inner}, nil
}

// Get implements Cache.Get
func (c *LRUCache) Get(ctx context.Context, key string) ([]float32, bool) {
	return c.inner.Get(key)
}

// Set implements Cache.Set
func (c *LRUCache) Set(ctx context.Context, key string, vector []float32) {
	c.inner.Add(key, vector)
}

// Close implements Cache.Close
func (c *LRUCache) Close() error {
	c.inner.Purge()
	return nil
}

// NoopCache never hits
type NoopCache struct{}

// NewNoopCache creates a cache that stores nothing
func NewNoopCache() *NoopCache { return &NoopCache{} }

// Get implements Cache.Get
func (c *NoopCache) Get(ctx context.Context, key string) ([]float32, bool) { return nil, false }

// Set implements Cache.Set
func (c *NoopCache) Set(ctx context.Context, key string, vector []float32) {}

// Close implements Cache.Close
func (c *NoopCache) Close() error { return nil }
