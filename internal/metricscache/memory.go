package metricscache

import (
	"sync"
	"time"

	"github.com/wonny/stockleague/backend/internal/contracts"
)

// MemoryCache is the in-process tier of the metrics cache: a short-lived
// accelerator over the durable tier, never a second source of truth.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]contracts.CacheEntry
	ttl     time.Duration

	now func() time.Time
}

// NewMemoryCache creates the in-process tier
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]contracts.CacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached entry for ticker. Entries older than the
// memory TTL are evicted and reported as misses, which sends the reader
// down to the durable tier.
func (c *MemoryCache) Get(ticker string) (contracts.CacheEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[ticker]
	c.mu.RUnlock()

	if !ok {
		return contracts.CacheEntry{}, false
	}

	if c.now().Sub(entry.UpdatedAt) >= c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a refresher may have replaced it
		if current, still := c.entries[ticker]; still && c.now().Sub(current.UpdatedAt) >= c.ttl {
			delete(c.entries, ticker)
		}
		c.mu.Unlock()
		return contracts.CacheEntry{}, false
	}

	return entry, true
}

// Set stores an entry in the memory tier
func (c *MemoryCache) Set(ticker string, entry contracts.CacheEntry) {
	c.mu.Lock()
	c.entries[ticker] = entry
	c.mu.Unlock()
}

// Len returns the number of resident entries
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
