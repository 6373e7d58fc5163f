// Package metrics defines the Prometheus collectors used by the engine and
// the search service, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid for
// every engine component and records nothing.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	ResultCacheHits      prometheus.Counter
	ResultCacheMisses    prometheus.Counter
	FilterCacheHits      prometheus.Counter
	FilterCacheMisses    prometheus.Counter
	FieldCacheLoads      *prometheus.CounterVec
	ReaderRefreshes      *prometheus.CounterVec
	SearchingGeneration  prometheus.Gauge
	DocsIndexedTotal     prometheus.Counter
	SegmentsFlushed      prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"kind"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_total_hits",
				Help:    "Total hits per search.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 1000, 10000},
			},
		),
		ResultCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "result_cache_hits_total",
				Help: "Total search result cache hits.",
			},
		),
		ResultCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "result_cache_misses_total",
				Help: "Total search result cache misses.",
			},
		),
		FilterCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "filter_cache_hits_total",
				Help: "Per-segment filter cache hits.",
			},
		),
		FilterCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "filter_cache_misses_total",
				Help: "Per-segment filter cache misses.",
			},
		),
		FieldCacheLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "field_cache_loads_total",
				Help: "Field cache entries loaded by value type.",
			},
			[]string{"type"},
		),
		ReaderRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reader_refreshes_total",
				Help: "Searcher refresh attempts by outcome (changed, unchanged, error).",
			},
			[]string{"outcome"},
		),
		SearchingGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "searching_generation",
				Help: "Highest indexing generation visible to searches.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		SegmentsFlushed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "segments_flushed_total",
				Help: "Total segments flushed by the index writer.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.ResultCacheHits,
		m.ResultCacheMisses,
		m.FilterCacheHits,
		m.FilterCacheMisses,
		m.FieldCacheLoads,
		m.ReaderRefreshes,
		m.SearchingGeneration,
		m.DocsIndexedTotal,
		m.SegmentsFlushed,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// FilterCacheHit records a filter cache hit or miss.
func (m *Metrics) FilterCacheHit(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.FilterCacheHits.Inc()
	} else {
		m.FilterCacheMisses.Inc()
	}
}

// FieldCacheLoad records one field cache entry computed for valueType.
func (m *Metrics) FieldCacheLoad(valueType string) {
	if m == nil {
		return
	}
	m.FieldCacheLoads.WithLabelValues(valueType).Inc()
}

// Refresh records the outcome of a searcher refresh.
func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.ReaderRefreshes.WithLabelValues(outcome).Inc()
}

// Generation publishes the searching generation.
func (m *Metrics) Generation(gen int64) {
	if m == nil {
		return
	}
	m.SearchingGeneration.Set(float64(gen))
}

// DocsIndexed adds n to the indexed documents counter.
func (m *Metrics) DocsIndexed(n int) {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.Add(float64(n))
}

// SegmentFlushed counts one flushed segment.
func (m *Metrics) SegmentFlushed() {
	if m == nil {
		return
	}
	m.SegmentsFlushed.Inc()
}

// SearchExecuted records the latency and hit count of one engine search.
func (m *Metrics) SearchExecuted(kind string, elapsed time.Duration, totalHits int) {
	if m == nil {
		return
	}
	m.SearchLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
	m.SearchResultsCount.Observe(float64(totalHits))
}

// ResultCacheHit records a result cache hit or miss.
func (m *Metrics) ResultCacheHit(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ResultCacheHits.Inc()
	} else {
		m.ResultCacheMisses.Inc()
	}
}

// SearchOutcome counts a finished search by result type: "hit",
// "zero_result" or "error".
func (m *Metrics) SearchOutcome(resultType string) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
}

// CircuitState publishes the state of the named circuit breaker.
func (m *Metrics) CircuitState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
