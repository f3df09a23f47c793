package paywall

import (
	"sync"
	"time"
)

// Cache holds each user's current access-granting subscription.
// A cached nil means the user was checked and has none.
type Cache interface {
	// Get returns a copy of the cached subscription and true if the user is cached
	Get(userID string) (*Subscription, bool)

	// Set caches the user's current subscription (possibly nil) for ttl
	Set(userID string, sub *Subscription, ttl time.Duration)

	// Invalidate removes the user from the cache
	Invalidate(userID string)

	// Clear removes all entries from the cache
	Clear()

	// Stats returns cache statistics
	Stats() CacheStats
}

// CacheStats holds cache performance statistics
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// cacheEntry wraps a cached value with expiration time and access time for LRU
type cacheEntry struct {
	value      *Subscription
	expiration time.Time
	accessTime time.Time
	sequence   int64 // tiebreak when access times are equal
}

func (e *cacheEntry) isExpired(now time.Time) bool {
	return now.After(e.expiration)
}

// NoopCache is a cache implementation that does nothing
// Used when caching is disabled
type NoopCache struct{}

// NewNoopCache creates a new no-op cache
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) Get(_ string) (*Subscription, bool)              { return nil, false }
func (c *NoopCache) Set(_ string, _ *Subscription, _ time.Duration) {}
func (c *NoopCache) Invalidate(_ string)                             {}
func (c *NoopCache) Clear()                                          {}
func (c *NoopCache) Stats() CacheStats                               { return CacheStats{} }

// LRUCache implements Cache using an in-memory LRU map with TTL support
type LRUCache struct {
	entries    map[string]*cacheEntry
	maxEntries int
	mu         sync.Mutex
	hits       int64
	misses     int64
	evictions  int64
	sequence   int64
}

// NewLRUCache creates a new LRU cache bounded to maxEntries users
func NewLRUCache(maxEntries int) *LRUCache {
	if maxEntries <= 0 {
		maxEntries = 1000 // default
	}
	return &LRUCache{
		entries:    make(map[string]*cacheEntry, maxEntries),
		maxEntries: maxEntries,
	}
}

func (c *LRUCache) Get(userID string) (*Subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, exists := c.entries[userID]
	if !exists || entry.isExpired(now) {
		c.misses++
		return nil, false
	}

	entry.accessTime = now
	c.hits++
	if entry.value == nil {
		return nil, true
	}
	cp := *entry.value
	return &cp, true
}

func (c *LRUCache) Set(userID string, sub *Subscription, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, exists := c.entries[userID]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	var stored *Subscription
	if sub != nil {
		cp := *sub
		stored = &cp
	}

	seq := c.sequence
	c.sequence++
	c.entries[userID] = &cacheEntry{
		value:      stored,
		expiration: now.Add(ttl),
		accessTime: now,
		sequence:   seq,
	}
}

// evictOldest drops the least recently used entry (oldest accessTime, then oldest sequence).
// Caller holds c.mu.
func (c *LRUCache) evictOldest() {
	var (
		oldestKey  string
		oldestTime time.Time
		oldestSeq  int64
		first      = true
	)
	for key, entry := range c.entries {
		if first || entry.accessTime.Before(oldestTime) ||
			(entry.accessTime.Equal(oldestTime) && entry.sequence < oldestSeq) {
			oldestKey = key
			oldestTime = entry.accessTime
			oldestSeq = entry.sequence
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

func (c *LRUCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry, c.maxEntries)
}

func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}
