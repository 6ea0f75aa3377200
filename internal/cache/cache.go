package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultTTL is how long a cached snapshot stays servable.
	DefaultTTL = 30 * time.Second
	// DefaultSweepInterval is the minimum gap between full expiry sweeps.
	DefaultSweepInterval = 60 * time.Second
	// DefaultMaxEntries caps the cache before LRU eviction kicks in.
	DefaultMaxEntries = 1024
)

// entry is a cached snapshot with its insertion timestamp.
type entry struct {
	value    any
	storedAt time.Time
}

// Options configures a Cache.
type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
	MaxEntries    int
	// Now overrides the clock; tests use this to simulate expiry.
	Now func() time.Time
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
}

// Cache is a process-local TTL cache for read snapshots. One mutex guards
// all access: operations are cheap map work, so a single lock keeps the
// TTL check and the LRU bookkeeping atomic.
//
// Entries expire strictly at TTL; an expired entry is never served even if
// the sweep hasn't run yet. Sweeping is opportunistic: a full pass runs
// during normal operations once SweepInterval has elapsed since the last
// one, bounding memory without a background timer.
type Cache struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, *entry]
	ttl       time.Duration
	sweepGap  time.Duration
	lastSweep time.Time
	now       func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a Cache. Zero option fields fall back to defaults.
func New(opts Options) (*Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	entries, err := lru.New[string, *entry](opts.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	return &Cache{
		entries:   entries,
		ttl:       opts.TTL,
		sweepGap:  opts.SweepInterval,
		lastSweep: opts.Now(),
		now:       opts.Now,
	}, nil
}

// Key builds a cache key from an operation name and its parameters.
// Keys with parameters invalidate per-project; parameterless keys (list
// and overview snapshots) invalidate on any mutation.
func Key(op string, params ...string) string {
	if len(params) == 0 {
		return op
	}
	return op + ":" + strings.Join(params, ":")
}

// GetOrLoad returns the cached value when its age is below TTL, otherwise
// invokes loader synchronously, stores the result with a fresh timestamp,
// and returns it.
//
// There is no single-flight deduplication: concurrent misses on the same
// key each hit the backend independently. Known gap, accepted for now —
// the polling workloads this absorbs are read-mostly and the loader is a
// single-row fetch.
func (c *Cache) GetOrLoad(ctx context.Context, key string, loader func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	c.maybeSweepLocked()
	if e, ok := c.entries.Get(key); ok {
		if c.now().Sub(e.storedAt) < c.ttl {
			c.hits++
			v := e.value
			c.mu.Unlock()
			return v, nil
		}
		c.entries.Remove(key)
		c.evictions++
	}
	c.misses++
	c.mu.Unlock()

	v, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries.Add(key, &entry{value: v, storedAt: c.now()})
	c.mu.Unlock()
	return v, nil
}

// Invalidate removes every cache entry that could contain the given
// project: keys parameterized by the project plus all parameterless
// aggregate keys.
func (c *Cache) Invalidate(project string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.entries.Keys() {
		if keyReferences(key, project) {
			c.entries.Remove(key)
			removed++
		}
	}
	c.evictions += uint64(removed)
	return removed
}

// keyReferences reports whether a key's snapshot could include project.
func keyReferences(key, project string) bool {
	_, params, found := strings.Cut(key, ":")
	if !found {
		// Aggregate snapshot (list, overview): contains every project.
		return true
	}
	for _, p := range strings.Split(params, ":") {
		if p == project {
			return true
		}
	}
	return false
}

// Purge drops everything.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   c.entries.Len(),
	}
}

// maybeSweepLocked removes all expired entries if the sweep interval has
// elapsed. Caller holds c.mu.
func (c *Cache) maybeSweepLocked() {
	now := c.now()
	if now.Sub(c.lastSweep) <= c.sweepGap {
		return
	}
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok && now.Sub(e.storedAt) >= c.ttl {
			c.entries.Remove(key)
			c.evictions++
		}
	}
	c.lastSweep = now
}
