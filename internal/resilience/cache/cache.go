// Package cache provides the multi-level result cache: a TTL-swept map of
// combined predictions plus collapsing of concurrent computations for the
// same key.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldline/gridcast/internal/domain/model"
	"github.com/fieldline/gridcast/pkg/metrics"
)

// Default cache configuration constants.
const (
	defaultTTL           = time.Hour
	defaultSweepInterval = time.Minute
)

// Key identifies one cached prediction. Two requests with different schema
// versions never share an entry.
type Key struct {
	Home          string
	Away          string
	Season        int
	Week          int
	SchemaVersion string
}

// entry is an immutable cached value. Entries are replaced, never edited, so
// a reader holding one can never observe a torn state.
type entry struct {
	value     model.CombinedPrediction
	expiresAt time.Time
}

// Cache is a guarded map of combined predictions with background TTL
// eviction.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]entry

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	hits   atomic.Int64
	misses atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Cache with default TTL and sweep interval.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:       make(map[Key]entry),
		ttl:           defaultTTL,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached prediction for key if present and unexpired. An
// expired entry behaves as a miss; the sweeper reclaims it later.
func (c *Cache) Get(key Key) (model.CombinedPrediction, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().After(e.expiresAt) {
		c.misses.Add(1)
		metrics.RecordCacheMiss()
		return model.CombinedPrediction{}, false
	}
	c.hits.Add(1)
	metrics.RecordCacheHit()
	return e.value, true
}

// Put stores a prediction under key, replacing any previous entry.
func (c *Cache) Put(key Key, value model.CombinedPrediction) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
	size := len(c.entries)
	c.mu.Unlock()
	metrics.UpdateCacheSize(size)
}

// Len returns the current entry count, expired entries included until swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cumulative hit/miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Start launches the background sweeper. Eviction runs concurrently with
// reads and writes; because entries are immutable values, a concurrent
// reader either sees the whole entry or none of it.
func (c *Cache) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

// Close stops the sweeper.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// sweep removes expired entries.
func (c *Cache) sweep() {
	now := c.now()
	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	size := len(c.entries)
	c.mu.Unlock()
	metrics.UpdateCacheSize(size)
}
