package paywall

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Manager keeps local checkout and subscription state in step with the billing provider
type Manager struct {
	storage Storage
	api     BillingAPI
	config  Config
	cache   Cache
	loads   singleflight.Group

	// cacheGen counts invalidations; a load only caches what it read if
	// no invalidation happened while it was reading.
	cacheMu  sync.Mutex
	cacheGen uint64
}

// NewManager creates a new billing manager with the given storage, provider API and configuration
func NewManager(storage Storage, api BillingAPI, config Config) (*Manager, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}
	if api == nil {
		return nil, fmt.Errorf("%w: billing API is required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var cache Cache = NewNoopCache()
	if config.CacheConfig != nil && config.CacheConfig.Enabled {
		cache = NewLRUCache(config.CacheConfig.MaxEntries)
	}

	return &Manager{
		storage: storage,
		api:     api,
		config:  config,
		cache:   cache,
	}, nil
}

// Storage returns the storage the manager writes through
func (m *Manager) Storage() Storage {
	return m.storage
}

// CacheStats returns entitlement cache statistics
func (m *Manager) CacheStats() CacheStats {
	return m.cache.Stats()
}

// invalidate drops the user's cached entitlement and keeps loads already in
// flight from caching rows read before the write.
func (m *Manager) invalidate(userID string) {
	m.cacheMu.Lock()
	m.cacheGen++
	m.cache.Invalidate(userID)
	m.cacheMu.Unlock()
	m.loads.Forget(userID)
}

func (m *Manager) cacheGeneration() uint64 {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	return m.cacheGen
}

// cacheIfCurrent stores sub unless an invalidation happened after gen was taken
func (m *Manager) cacheIfCurrent(userID string, sub *Subscription, gen uint64) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if m.cacheGen == gen {
		m.cache.Set(userID, sub, m.config.CacheConfig.TTL)
	}
}

func (m *Manager) now() time.Time {
	return m.config.Now().UTC()
}

func (m *Manager) logger() Logger {
	return m.config.Logger
}

func (m *Manager) metrics() Metrics {
	return m.config.Metrics
}
