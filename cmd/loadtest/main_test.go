package main

import (
	"bytes"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/dsl"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/executor"
)

func TestDefaultQueriesParse(t *testing.T) {
	queries, err := loadQueries("")
	require.NoError(t, err)
	p := dsl.NewParser(analysis.Standard{}, cache.NewRegistry(4, nil), 4)
	for _, raw := range queries {
		var req executor.Request
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		require.NoError(t, dec.Decode(&req), string(raw))
		_, err := p.Parse(req.Query)
		require.NoError(t, err, string(raw))
		if len(req.Filter) > 0 {
			_, err := p.ParseFilter(req.Filter, req.CacheFilter)
			require.NoError(t, err, string(raw))
		}
		if len(req.Sort) > 0 {
			_, err = executor.ParseSort(req.Sort)
			require.NoError(t, err)
		}
	}
}

func TestLoadQueriesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n{\"query\": {\"match_all\": {}}}\n\n"), 0o644))
	queries, err := loadQueries(path)
	require.NoError(t, err)
	assert.Len(t, queries, 1)

	require.NoError(t, os.WriteFile(path, []byte("{\"query\":\n"), 0o644))
	_, err = loadQueries(path)
	assert.Error(t, err)
}

func TestSeedDocumentIsValid(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for id := 1; id <= 20; id++ {
		raw, err := json.Marshal(seedDocument(r, id))
		require.NoError(t, err)
		var e ingest.DocumentEvent
		require.NoError(t, json.Unmarshal(raw, &e))
		_, err = ingest.ToDocument(&e, 4)
		require.NoError(t, err)
	}
}

func TestStatsAndReport(t *testing.T) {
	s := NewStats()
	s.RecordRequest(10*time.Millisecond, http.StatusOK, true, nil)
	s.RecordRequest(30*time.Millisecond, http.StatusOK, false, nil)
	s.RecordRequest(20*time.Millisecond, http.StatusTooManyRequests, false, nil)
	s.RecordRequest(0, 0, false, assert.AnError)

	assert.Equal(t, int64(4), s.totalRequests.Load())
	assert.Equal(t, int64(2), s.successCount.Load())
	assert.Equal(t, int64(1), s.throttled.Load())
	assert.Equal(t, int64(1), s.errorCount.Load())

	var out bytes.Buffer
	assert.True(t, printReport(&out, s, time.Second))
	assert.Contains(t, out.String(), "Cache Hit Rate:  50.00%")
	assert.Contains(t, out.String(), "429: 1")
	assert.False(t, printReport(&bytes.Buffer{}, NewStats(), time.Second))
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestCacheHit(t *testing.T) {
	assert.True(t, cacheHit([]byte(`{"cache_hit": true}`)))
	assert.False(t, cacheHit([]byte(`{"cache_hit": false}`)))
	assert.False(t, cacheHit([]byte(`not json`)))
}
