package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analytics"
	searchcache "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

type fakeSearcher struct {
	result  *executor.SearchResult
	hit     bool
	err     error
	explain *executor.ExplainResult
	got     *executor.Request
}

func (s *fakeSearcher) Search(_ context.Context, req *executor.Request) (*executor.SearchResult, bool, error) {
	s.got = req
	return s.result, s.hit, s.err
}

func (s *fakeSearcher) Explain(_ context.Context, req *executor.ExplainRequest) (*executor.ExplainResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.explain, nil
}

type fakeResults struct {
	stats   cache.Stats
	deleted int64
	err     error
}

func (r *fakeResults) Stats() cache.Stats { return r.stats }

func (r *fakeResults) Invalidate(context.Context) (int64, error) { return r.deleted, r.err }

type fakeFilters struct{ cleared int }

func (f *fakeFilters) Stats() []searchcache.FilterStats {
	return []searchcache.FilterStats{{Filter: "QueryWrapperFilter(body:fox)", Entries: 2, Hits: 3, Misses: 2}}
}

func (f *fakeFilters) Clear() int {
	f.cleared++
	return 1
}

type queryLog struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (l *queryLog) Record(e analytics.SearchEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestSearch(t *testing.T) {
	s := &fakeSearcher{
		result: &executor.SearchResult{Query: "body:fox", TotalHits: 2, MaxScore: 1.5,
			Hits: []executor.Hit{{Doc: 0, Score: 1.5}, {Doc: 4, Score: 0.5}}, Version: 9},
		hit: true,
	}
	agg := analytics.NewAggregator()
	log := &queryLog{}
	h := New(s, Options{Tracker: analytics.NewCollector(nil, agg, 10, 0), QueryLog: log})

	rec := serve(h, http.MethodPost, "/api/v1/search", `{"query": {"term": {"field": "body", "value": "fox"}}, "size": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "body:fox", out["query"])
	assert.Equal(t, float64(2), out["total_hits"])
	assert.Equal(t, true, out["cache_hit"])
	assert.Contains(t, out, "took_ms")
	assert.Len(t, out["hits"], 2)
	assert.Equal(t, 2, s.got.Size)

	require.Len(t, log.events, 1)
	assert.Equal(t, analytics.EventSearch, log.events[0].Type)
	assert.Equal(t, int64(9), log.events[0].Version)
	assert.Equal(t, int64(1), agg.Stats().CacheHits)
}

func TestSearchZeroResults(t *testing.T) {
	s := &fakeSearcher{result: &executor.SearchResult{Query: "body:yak", Hits: []executor.Hit{}}}
	log := &queryLog{}
	h := New(s, Options{QueryLog: log})

	rec := serve(h, http.MethodPost, "/api/v1/search", `{"query": {"term": {"field": "body", "value": "yak"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, analytics.EventZeroResult, log.events[0].Type)
}

func TestSearchBadRequests(t *testing.T) {
	h := New(&fakeSearcher{}, Options{})
	for name, body := range map[string]string{
		"malformed":     `{"query":`,
		"unknown field": `{"query": {"match_all": {}}, "limit": 3}`,
		"no query":      `{"size": 3}`,
	} {
		rec := serve(h, http.MethodPost, "/api/v1/search", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}

	rec := serve(h, http.MethodPost, "/api/v1/search", `{"query": {"term": {"field": "`+strings.Repeat("x", maxBodyBytes)+`"}}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too large")
}

func TestSearchErrorStatus(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{apperrors.Invalidf("unknown query type %q", "nope"), http.StatusBadRequest, "unknown query type"},
		{fmt.Errorf("%w: 2000 clauses", apperrors.ErrTooManyClauses), http.StatusUnprocessableEntity, "too many boolean clauses"},
		{fmt.Errorf("%w: waiting for generation 5", apperrors.ErrTimeout), http.StatusServiceUnavailable, "search failed"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "search failed"},
	}
	for _, tc := range cases {
		log := &queryLog{}
		h := New(&fakeSearcher{err: tc.err}, Options{QueryLog: log})
		rec := serve(h, http.MethodPost, "/api/v1/search", `{"query": {"match_all": {}}}`)
		assert.Equal(t, tc.status, rec.Code)
		assert.Contains(t, rec.Body.String(), tc.message)
		require.Len(t, log.events, 1)
		assert.Equal(t, analytics.EventSearchFail, log.events[0].Type)
	}
}

func TestExplain(t *testing.T) {
	s := &fakeSearcher{explain: &executor.ExplainResult{Query: "body:fox", Doc: 3, Match: true, Score: 0.7, Text: "0.7 = (MATCH) weight(body:fox in 3)\n"}}
	h := New(s, Options{})

	rec := serve(h, http.MethodPost, "/api/v1/explain", `{"query": {"term": {"field": "body", "value": "fox"}}, "doc": 3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, true, out["match"])
	assert.Equal(t, 0.7, out["score"])

	rec = serve(h, http.MethodPost, "/api/v1/explain", `{"doc": 3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.err = apperrors.Invalidf("doc 99 out of range")
	rec = serve(h, http.MethodPost, "/api/v1/explain", `{"query": {"match_all": {}}, "doc": 99}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCacheStats(t *testing.T) {
	h := New(&fakeSearcher{}, Options{
		Results: &fakeResults{stats: cache.Stats{Hits: 3, Misses: 1, Circuit: "closed"}},
		Filters: &fakeFilters{},
	})
	rec := serve(h, http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	results := out["results"].(map[string]any)
	assert.Equal(t, 0.75, results["hit_rate"])
	assert.Equal(t, "closed", results["circuit"])
	assert.Len(t, out["filters"], 1)

	rec = serve(New(&fakeSearcher{}, Options{}), http.MethodGet, "/api/v1/cache/stats", "")
	out = decode(t, rec)
	assert.Equal(t, map[string]any{"status": "disabled"}, out["results"])
	assert.Empty(t, out["filters"])
}

func TestCacheInvalidate(t *testing.T) {
	filters := &fakeFilters{}
	h := New(&fakeSearcher{}, Options{Results: &fakeResults{deleted: 4}, Filters: filters})
	rec := serve(h, http.MethodPost, "/api/v1/cache/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, float64(4), out["results_deleted"])
	assert.Equal(t, float64(1), out["filters_cleared"])
	assert.Equal(t, 1, filters.cleared)

	h = New(&fakeSearcher{}, Options{Results: &fakeResults{err: errors.New("redis down")}})
	rec = serve(h, http.MethodPost, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoutesRequireMethod(t *testing.T) {
	h := New(&fakeSearcher{}, Options{})
	rec := serve(h, http.MethodGet, "/api/v1/search", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSearchProfile(t *testing.T) {
	s := &fakeSearcher{result: &executor.SearchResult{Query: "*:*", TotalHits: 1, Hits: []executor.Hit{{Doc: 0, Score: 1}}}}
	h := New(s, Options{})

	rec := serve(h, http.MethodPost, "/api/v1/search?profile=true", `{"query": {"match_all": {}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Contains(t, out["profile"], "search")

	rec = serve(h, http.MethodPost, "/api/v1/search", `{"query": {"match_all": {}}}`)
	assert.NotContains(t, decode(t, rec), "profile")
}
