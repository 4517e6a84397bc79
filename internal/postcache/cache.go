// Package postcache caches post metadata fetched from the rate-limited
// external lookup API.
package postcache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/scenecast/scenecast/internal/domain"
	"github.com/scenecast/scenecast/internal/metrics"
)

// DefaultTTL is how long a cached post stays read-valid.
const DefaultTTL = 30 * time.Minute

// Cache is a time-bounded post cache keyed by external ref.
//
// Expiry is lazy: expired entries are reported absent on Get but stay in the
// map until the next Put overwrites them. There is no sweeper goroutine; the
// set of distinct refs is bounded by the scene catalog, so unbounded growth
// is a non-issue and the simplicity is deliberate.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]domain.CachedPost
	ttl     time.Duration
	clock   clockwork.Clock
}

func New(ttl time.Duration, clock clockwork.Clock) *Cache {
	return &Cache{
		entries: make(map[string]domain.CachedPost),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the cached post for ref if present and younger than the TTL.
func (c *Cache) Get(ref string) (domain.CachedPost, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[ref]
	if !ok {
		metrics.CacheMisses.Inc()
		return domain.CachedPost{}, false
	}

	if c.clock.Since(entry.CachedAt) >= c.ttl {
		// Expired entry, treat as a miss. Not deleted here (read lock only);
		// the next successful fetch overwrites it.
		metrics.CacheMisses.Inc()
		return domain.CachedPost{}, false
	}

	metrics.CacheHits.Inc()
	return entry, true
}

// Put stores post under ref with CachedAt stamped now, unconditionally
// overwriting any prior entry.
func (c *Cache) Put(ref string, post domain.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[ref] = domain.CachedPost{
		ExternalRef: ref,
		URL:         post.URL,
		CreatedAt:   post.CreatedAt,
		CachedAt:    c.clock.Now(),
	}
	metrics.CacheSize.Set(float64(len(c.entries)))
}

// Size returns the number of entries held, expired ones included.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
