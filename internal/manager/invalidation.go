package manager

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/ctxtrack-mcp/internal/cache"
)

// Tracker ties mutations to cache invalidation. Every successful write
// passes through Invalidated before the mutation's result is returned, so
// no subsequent read can be served a snapshot predating the write from
// this process's cache.
type Tracker struct {
	cache  *cache.Cache
	logger *zap.Logger

	mu     sync.Mutex
	counts map[string]uint64
	total  uint64
}

// NewTracker creates a Tracker over the given cache.
func NewTracker(c *cache.Cache, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		cache:  c,
		logger: logger,
		counts: make(map[string]uint64),
	}
}

// Invalidated records a mutation of the named project and synchronously
// removes every cache entry that could contain it.
func (t *Tracker) Invalidated(project string) {
	removed := t.cache.Invalidate(project)

	t.mu.Lock()
	t.counts[project]++
	t.total++
	t.mu.Unlock()

	t.logger.Debug("cache invalidated",
		zap.String("project", project),
		zap.Int("entries_removed", removed))
}

// Total returns how many invalidations have been recorded.
func (t *Tracker) Total() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Count returns how many invalidations the named project has triggered.
func (t *Tracker) Count(project string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[project]
}
