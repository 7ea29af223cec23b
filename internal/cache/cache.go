package cache

import (
	"sync"
	"time"
)

// Snapshots provides thread-safe caching of marshaled renderer payloads
// (GeoJSON snapshots, history exports) keyed by accessor name. Revealed
// geometry only changes when a mutation commits, so entries are dropped on
// invalidation rather than aged out by TTL.
type Snapshots struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	payload   []byte
	createdAt time.Time
}

// NewSnapshots creates an empty snapshot cache.
func NewSnapshots() *Snapshots {
	return &Snapshots{entries: make(map[string]*entry)}
}

// Get returns the cached payload for key, if present.
func (c *Snapshots) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.payload, true
}

// Set stores a payload under key.
func (c *Snapshots) Set(key string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{payload: payload, createdAt: time.Now()}
}

// Invalidate drops every cached snapshot. Called after each successful
// geometry mutation.
func (c *Snapshots) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Stats reports cache usage.
func (c *Snapshots) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{Entries: len(c.entries)}
	for _, e := range c.entries {
		if stats.Oldest.IsZero() || e.createdAt.Before(stats.Oldest) {
			stats.Oldest = e.createdAt
		}
	}
	return stats
}

// Stats describes snapshot cache usage.
type Stats struct {
	Entries int
	Oldest  time.Time
}
