// Package cache provides a bounded, least-recently-used result cache with
// per-entry expiry.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is safe for concurrent use. Expired entries are dropped lazily on
// lookup; the least recently used entry is evicted once Size is exceeded.
type Cache[V any] struct {
	entries *lru.Cache[string, entry[V]]
	now     func() time.Time
}

// New creates a cache holding at most size entries.
func New[V any](size int) (*Cache[V], error) {
	entries, err := lru.New[string, entry[V]](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Cache[V]{entries: entries, now: time.Now}, nil
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	e, ok := c.entries.Get(key)
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl removes the key.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		c.entries.Remove(key)
		return
	}
	c.entries.Add(key, entry[V]{value: value, expiresAt: c.now().Add(ttl)})
}

// Len reports the number of stored entries, including expired ones not yet
// evicted.
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}
