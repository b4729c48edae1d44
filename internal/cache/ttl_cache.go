// Package cache provides a minimal in-memory TTL cache for hot-path
// lookups (FX rate tables, resolved reference data).
package cache

import (
	"sync"
	"time"
)

// Cache is the read/write interface consumed by services.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache stores values in-memory with per-entry TTLs. Expiry is
// evaluated against a pluggable time source so TTL behaviour is
// testable without sleeping.
type TTLCache[K comparable, V any] struct {
	mu    sync.RWMutex
	now   func() time.Time
	items map[K]entry[V]
}

// NewTTLCache constructs a cache using the wall clock.
func NewTTLCache[K comparable, V any]() *TTLCache[K, V] {
	return NewTTLCacheWithNow[K, V](time.Now)
}

// NewTTLCacheWithNow constructs a cache with an explicit time source.
func NewTTLCacheWithNow[K comparable, V any](now func() time.Time) *TTLCache[K, V] {
	return &TTLCache[K, V]{now: now, items: make(map[K]entry[V])}
}

// Get returns a cached value if it exists and has not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if !item.expiresAt.IsZero() && c.now().After(item.expiresAt) {
		c.Delete(key)
		return zero, false
	}
	return item.value, true
}

// Set stores a value. A zero or negative TTL means the entry never
// expires.
func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if c == nil {
		return
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
}

// Delete removes a cached entry.
func (c *TTLCache[K, V]) Delete(key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}
