// Package ttrcache provides a keyed cache with sliding time-to-refresh
// expiry. Unlike a fixed TTL cache, the expiry clock resets on every
// hit: an entry that keeps being accessed never refetches, while an
// untouched entry goes stale after the refresh window and is refetched
// from scratch on its next lookup.
package ttrcache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	value      V
	fetchedAt  time.Time
	lastAccess time.Time
}

// Cache is safe for concurrent use. Concurrent misses for the same key
// collapse into a single fetch; all waiters receive the same outcome.
// Failures are never cached. The entry count is bounded: inserting past
// capacity evicts the least-recently-accessed entry.
type Cache[V any] struct {
	window time.Duration
	flight singleflight.Group

	// mu guards entries and the lastAccess field of every entry; the
	// LRU's own locking does not cover our timestamp updates.
	mu      sync.Mutex
	entries *lru.Cache[string, *entry[V]]

	now func() time.Time
}

// New creates a cache with the given sliding refresh window and maximum
// entry count. Capacities below 1 are clamped to 1.
func New[V any](window time.Duration, capacity int) *Cache[V] {
	if capacity < 1 {
		capacity = 1
	}
	// lru.New only fails on a non-positive size, which the clamp rules
	// out.
	entries, _ := lru.New[string, *entry[V]](capacity)
	return &Cache[V]{
		window:  window,
		entries: entries,
		now:     time.Now,
	}
}

// GetOrFetch returns the live cached value for key, or invokes fetcher
// to produce one. A live entry's lastAccess is bumped on every hit. On
// fetch success the entry is inserted (replacing any stale value); on
// failure nothing is cached and every subsequent caller retries
// independently.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetcher func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	result, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// A racing caller may have completed a fetch between our miss
		// and joining the flight.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := fetcher(ctx)
		if err != nil {
			return nil, err
		}
		c.insert(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Get returns the live cached value for key without fetching.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lookup(key)
}

// Len reports the number of entries currently held, stale ones included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Remove drops the entry for key if present.
func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	e, ok := c.entries.Get(key)
	if !ok {
		return zero, false
	}
	now := c.now()
	if now.Sub(e.lastAccess) >= c.window {
		// Stale: drop it so the caller refetches a fresh value rather
		// than reusing old data.
		c.entries.Remove(key)
		return zero, false
	}
	e.lastAccess = now
	return e.value, true
}

func (c *Cache[V]) insert(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries.Add(key, &entry[V]{value: value, fetchedAt: now, lastAccess: now})
}
