// Package cache memoizes filter results per segment core so repeated
// filtered searches skip recomputing the filter.
package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/metrics"
)

// CachingWrapperFilter caches the docs of a wrapped filter per segment
// core. Entries ignore deletions; the accept docs of each lookup are
// applied on the way out, so a reopen that only deletes docs reuses the
// entry. Entries are dropped when their core closes.
type CachingWrapperFilter struct {
	filter  search.Filter
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu        sync.RWMutex
	entries   map[*index.SegmentCore]search.DocIdSet
	// listening holds the cores that already carry our closed listener;
	// Invalidate keeps it so re-stored entries do not add another.
	listening map[*index.SegmentCore]struct{}
	group     singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingWrapperFilter wraps f. m may be nil.
func NewCachingWrapperFilter(f search.Filter, m *metrics.Metrics) *CachingWrapperFilter {
	return &CachingWrapperFilter{
		filter:    f,
		metrics:   m,
		logger:    slog.Default().With("component", "filter-cache"),
		entries:   make(map[*index.SegmentCore]search.DocIdSet),
		listening: make(map[*index.SegmentCore]struct{}),
	}
}

func (c *CachingWrapperFilter) Filter() search.Filter { return c.filter }

func (c *CachingWrapperFilter) DocIdSet(leaf *index.LeafContext, acceptDocs index.Bits) (search.DocIdSet, error) {
	set, err := c.cached(leaf)
	if err != nil {
		return nil, err
	}
	if set == search.EmptyDocIdSet {
		return set, nil
	}
	return search.BitsFilteredDocIdSet(set, acceptDocs), nil
}

// cached returns the deletion-oblivious set of leaf's core, computing it
// at most once even under concurrent lookups.
func (c *CachingWrapperFilter) cached(leaf *index.LeafContext) (search.DocIdSet, error) {
	core := leaf.Segment.Core()
	if set, ok := c.lookup(core); ok {
		c.hits.Add(1)
		c.metrics.FilterCacheHit(true)
		return set, nil
	}
	v, err, _ := c.group.Do(fmt.Sprintf("%p", core), func() (any, error) {
		if set, ok := c.lookup(core); ok {
			return set, nil
		}
		c.misses.Add(1)
		c.metrics.FilterCacheHit(false)
		set, err := c.filter.DocIdSet(leaf, nil)
		if err != nil {
			return nil, fmt.Errorf("computing cached filter %s: %w", c.filter, err)
		}
		set = cacheable(set, core.MaxDoc())
		c.store(core, set)
		c.logger.Debug("filter cache miss", "segment", core.Name(), "filter", c.filter.String())
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(search.DocIdSet), nil
}

// cacheable keeps cacheable sets as they are and copies the others into a
// bit set. Sets without docs become the shared empty set.
func cacheable(set search.DocIdSet, maxDoc int) search.DocIdSet {
	if set == nil {
		return search.EmptyDocIdSet
	}
	it := set.Iterator()
	if it == nil {
		return search.EmptyDocIdSet
	}
	if set.IsCacheable() {
		return set
	}
	return search.NewBitDocIdSetFrom(it, maxDoc)
}

func (c *CachingWrapperFilter) lookup(core *index.SegmentCore) (search.DocIdSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.entries[core]
	return set, ok
}

func (c *CachingWrapperFilter) store(core *index.SegmentCore, set search.DocIdSet) {
	c.mu.Lock()
	c.entries[core] = set
	_, registered := c.listening[core]
	c.listening[core] = struct{}{}
	c.mu.Unlock()
	if !registered {
		core.AddClosedListener(c.evict)
	}
}

func (c *CachingWrapperFilter) evict(core *index.SegmentCore) {
	c.mu.Lock()
	delete(c.entries, core)
	delete(c.listening, core)
	c.mu.Unlock()
	c.logger.Debug("filter cache entry evicted", "segment", core.Name())
}

// Invalidate drops every entry.
func (c *CachingWrapperFilter) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[*index.SegmentCore]search.DocIdSet)
}

// Entries returns the number of cached segment cores.
func (c *CachingWrapperFilter) Entries() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MissCount is the number of times the wrapped filter was computed.
func (c *CachingWrapperFilter) MissCount() int64 { return c.misses.Load() }

func (c *CachingWrapperFilter) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachingWrapperFilter) String() string {
	return "CachingWrapperFilter(" + c.filter.String() + ")"
}
