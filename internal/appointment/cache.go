package appointment

import (
	"sync"
	"time"

	"github.com/worldofdoors/doorbot/internal/backend"
)

// AvailabilityCache keeps recent calendar answers so repeated "what about
// Tuesday?" questions in one call do not hammer the backend. Backend
// change events invalidate the whole cache, because any booking can take
// a quoted slot away.
type AvailabilityCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	availability backend.Availability
	storedAt     time.Time
}

// NewAvailabilityCache creates a cache with the given entry lifetime.
func NewAvailabilityCache(ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]cacheEntry{},
	}
}

// Get returns the cached answer for a date (YYYY-MM-DD), if still fresh.
func (c *AvailabilityCache) Get(date string) (*backend.Availability, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[date]
	if !ok || c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, date)
		return nil, false
	}
	availability := entry.availability
	return &availability, true
}

// Put stores the calendar's answer for a date.
func (c *AvailabilityCache) Put(date string, availability backend.Availability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[date] = cacheEntry{availability: availability, storedAt: c.now()}
}

// Invalidate drops every entry. Called when the backend reports any
// appointment or calendar change.
func (c *AvailabilityCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]cacheEntry{}
}
