package fetcher

import (
	"sync"
	"time"

	"github.com/kandev/agentperms/internal/agents/models"
)

const defaultTTL = time.Minute

// CacheEntry holds one fetch result. A nil Agent records a confirmed miss.
type CacheEntry struct {
	Agent     *models.Agent
	CachedAt  time.Time
	ExpiresAt time.Time
}

// IsValid returns true if the cache entry has not expired.
func (e *CacheEntry) IsValid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Cache is a thread-safe TTL cache of fetch results keyed by agent id.
// Version changes whenever an entry is added, replaced or dropped.
type Cache struct {
	entries map[string]*CacheEntry
	mu      sync.RWMutex
	ttl     time.Duration
	version uint64
	now     func() time.Time
}

// NewCache creates a fetch cache. A non-positive ttl uses the default.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		entries: make(map[string]*CacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the live entry for id. Expired entries are reported as absent.
func (c *Cache) Get(id string) (*CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[id]
	if !exists || !entry.IsValid(c.now()) {
		return nil, false
	}
	return entry, true
}

// Set caches a fetch result for id.
func (c *Cache) Set(id string, agent *models.Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[id] = &CacheEntry{
		Agent:     agent.Clone(),
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.version++
}

// Invalidate removes the cache entry for id.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; !ok {
		return
	}
	delete(c.entries, id)
	c.version++
}

// Clear removes all cache entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*CacheEntry)
	c.version++
}

// Version returns the cache's change counter.
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// TTL returns how long entries stay valid.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
