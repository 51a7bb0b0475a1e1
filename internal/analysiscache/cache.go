// Package analysiscache memoizes ingestion and indicator results
package analysiscache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/finlens/finlens/internal/common"
)

// Producer computes the value for a key on a cache miss.
type Producer func(ctx context.Context) (interface{}, error)

type entry struct {
	value      interface{}
	expiresAt  time.Time
	lastAccess time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// Cache is a keyed memoization cache with a freshness deadline, LRU
// eviction at capacity, and a single-flight guarantee: for any key at most
// one producer runs at a time, and concurrent callers share its outcome.
// Producer failures are surfaced to all waiters and never cached.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	capacity int
	ttl      time.Duration
	group    singleflight.Group
	logger   *common.Logger
}

// New creates a cache with the given capacity and freshness deadline.
func New(logger *common.Logger, capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 256
	}
	if ttl <= 0 {
		ttl = common.FreshnessAnalysis
	}
	return &Cache{
		entries:  make(map[string]*entry),
		capacity: capacity,
		ttl:      ttl,
		logger:   logger,
	}
}

// GetOrCompute returns the cached value for key, or runs producer to
// populate it. Concurrent callers for the same key observe the same value
// or the same error from a single producer invocation.
func (c *Cache) GetOrCompute(ctx context.Context, key string, producer Producer) (interface{}, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: another caller may have populated the
		// key between the miss and the flight starting.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		v, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		c.logger.Debug().Str("key", key).Msg("Shared in-flight computation")
	}
	return v, nil
}

// lookup returns a fresh entry and bumps its access time.
func (c *Cache) lookup(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired() {
		delete(c.entries, key)
		return nil, false
	}
	e.lastAccess = time.Now()
	return e.value, true
}

// store inserts a value, evicting the least recently used entry when the
// cache is at capacity.
func (c *Cache) store(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictLRU()
	}

	now := time.Now()
	c.entries[key] = &entry{
		value:      value,
		expiresAt:  now.Add(c.ttl),
		lastAccess: now,
	}
}

// evictLRU removes the least recently used entry. Caller holds the lock.
func (c *Cache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.lastAccess.Before(oldest) {
			oldestKey = key
			oldest = e.lastAccess
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Invalidate removes a key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of cached entries, expired included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
