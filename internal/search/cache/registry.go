package cache

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/metrics"
)

// Registry shares one CachingWrapperFilter per distinct filter across
// requests. Filters are identified by their String form, so two requests
// naming the same filter reuse the same per-segment entries.
type Registry struct {
	metrics *metrics.Metrics
	// maxFilters bounds the number of distinct filters; zero is unbounded.
	maxFilters int

	mu      sync.Mutex
	filters map[string]*CachingWrapperFilter
}

// FilterStats is a snapshot of one registered filter.
type FilterStats struct {
	Filter  string `json:"filter"`
	Entries int    `json:"entries"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
}

func NewRegistry(maxFilters int, m *metrics.Metrics) *Registry {
	return &Registry{
		metrics:    m,
		maxFilters: maxFilters,
		filters:    make(map[string]*CachingWrapperFilter),
	}
}

// Get returns the caching wrapper registered for f, creating it on first
// use. When the registry is full f is wrapped without being registered.
func (r *Registry) Get(f search.Filter) *CachingWrapperFilter {
	key := f.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.filters[key]; ok {
		return c
	}
	c := NewCachingWrapperFilter(f, r.metrics)
	if r.maxFilters > 0 && len(r.filters) >= r.maxFilters {
		return c
	}
	r.filters[key] = c
	return c
}

// Stats lists every registered filter ordered by name.
func (r *Registry) Stats() []FilterStats {
	r.mu.Lock()
	filters := make([]*CachingWrapperFilter, 0, len(r.filters))
	for _, c := range r.filters {
		filters = append(filters, c)
	}
	r.mu.Unlock()

	out := make([]FilterStats, 0, len(filters))
	for _, c := range filters {
		hits, misses := c.Stats()
		out = append(out, FilterStats{Filter: c.Filter().String(), Entries: c.Entries(), Hits: hits, Misses: misses})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filter < out[j].Filter })
	return out
}

// Clear drops every registered filter and its entries.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.filters)
	for _, c := range r.filters {
		c.Invalidate()
	}
	r.filters = make(map[string]*CachingWrapperFilter)
	return n
}
