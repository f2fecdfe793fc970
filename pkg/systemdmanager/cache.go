package systemdmanager

import (
	"sync"
	"time"
)

const (
	enabledTTL     = 30 * time.Second
	enabledMaxSize = 512
)

// enabledCache remembers unit-file enablement for a short while. The status
// poller asks about every timer on each tick and ListUnitFilesByPatterns is
// slow compared to property reads.
type enabledCache struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]enabledEntry
}

type enabledEntry struct {
	on  bool
	exp time.Time
}

func newEnabledCache(ttl time.Duration) *enabledCache {
	return &enabledCache{ttl: ttl, m: map[string]enabledEntry{}}
}

func (c *enabledCache) get(unit string, now time.Time) (on, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, hit := c.m[unit]
	if !hit || !now.Before(e.exp) {
		return false, false
	}
	return e.on, true
}

// put records a lookup. When the map is full, expired entries are swept; if
// that frees nothing the whole map is reset.
func (c *enabledCache) put(unit string, on bool, now time.Time) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.m) >= enabledMaxSize {
		for k, e := range c.m {
			if !now.Before(e.exp) {
				delete(c.m, k)
			}
		}
		if len(c.m) >= enabledMaxSize {
			c.m = map[string]enabledEntry{}
		}
	}
	c.m[unit] = enabledEntry{on: on, exp: now.Add(c.ttl)}
}

func (c *enabledCache) drop(unit string) {
	c.mu.Lock()
	delete(c.m, unit)
	c.mu.Unlock()
}
