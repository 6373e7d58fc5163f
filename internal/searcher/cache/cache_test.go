package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/dsl"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/resilience"
)

var errMiss = errors.New("miss")

type memStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	fail  error
	delay time.Duration
	gets  atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.gets.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	v, ok := s.data[key]
	if !ok {
		return nil, errMiss
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPrefix(_ context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func isMiss(err error) bool { return errors.Is(err, errMiss) }

func newCache(store Store, breaker resilience.CircuitBreakerConfig) *QueryCache {
	return New(store, Config{TTL: time.Minute, Breaker: breaker, IsMiss: isMiss}, nil)
}

func request(q string) *executor.Request {
	return &executor.Request{Query: dsl.Node(q)}
}

func computeWith(calls *atomic.Int64, total int) func() (*executor.SearchResult, error) {
	return func() (*executor.SearchResult, error) {
		calls.Add(1)
		return &executor.SearchResult{Query: "body:fox", TotalHits: total, Hits: []executor.Hit{{Doc: 1, Score: 0.5}}, Version: 3}, nil
	}
}

func TestGetOrComputeCachesPerVersion(t *testing.T) {
	c := newCache(newMemStore(), resilience.CircuitBreakerConfig{})
	ctx := context.Background()
	var calls atomic.Int64

	res, hit, err := c.GetOrCompute(ctx, 3, request(`{"match_all": {}}`), computeWith(&calls, 7))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, res.TotalHits)

	res, hit, err = c.GetOrCompute(ctx, 3, request(`{ "match_all" : {} }`), computeWith(&calls, 8))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 7, res.TotalHits)
	assert.Equal(t, []executor.Hit{{Doc: 1, Score: 0.5}}, res.Hits)

	_, hit, err = c.GetOrCompute(ctx, 4, request(`{"match_all": {}}`), computeWith(&calls, 9))
	require.NoError(t, err)
	assert.False(t, hit)

	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, Stats{Hits: 1, Misses: 2, Circuit: "closed"}, c.Stats())
}

func TestGetOrComputeCollapsesConcurrentMisses(t *testing.T) {
	c := newCache(newMemStore(), resilience.CircuitBreakerConfig{})
	var calls atomic.Int64
	release := make(chan struct{})
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return &executor.SearchResult{TotalHits: 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := c.GetOrCompute(context.Background(), 1, request(`{"match_all": {}}`), compute)
			assert.NoError(t, err)
			assert.Equal(t, 1, res.TotalHits)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int64(2))
}

func TestComputeErrorIsNotCached(t *testing.T) {
	c := newCache(newMemStore(), resilience.CircuitBreakerConfig{})
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), 1, request(`{"match_all": {}}`), func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	var calls atomic.Int64
	_, hit, err := c.GetOrCompute(context.Background(), 1, request(`{"match_all": {}}`), computeWith(&calls, 1))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestStoreFailuresOpenBreaker(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("connection refused")
	c := newCache(store, resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	var calls atomic.Int64

	for i := 0; i < 3; i++ {
		res, hit, err := c.GetOrCompute(context.Background(), 1, request(`{"match_all": {}}`), computeWith(&calls, 5))
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, 5, res.TotalHits)
	}
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, "open", c.Stats().Circuit)

	// Open breaker short-circuits the store.
	before := store.gets.Load()
	_, _, err := c.GetOrCompute(context.Background(), 1, request(`{"match_all": {}}`), computeWith(&calls, 5))
	require.NoError(t, err)
	assert.Equal(t, before, store.gets.Load())
}

func TestMissDoesNotTripBreaker(t *testing.T) {
	c := newCache(newMemStore(), resilience.CircuitBreakerConfig{FailureThreshold: 1})
	for i := 0; i < 3; i++ {
		_, ok := c.Get(context.Background(), int64(i), request(`{"match_all": {}}`))
		assert.False(t, ok)
	}
	assert.Equal(t, "closed", c.Stats().Circuit)
	assert.Zero(t, c.Stats().Errors)
}

func TestSlowStoreTimesOut(t *testing.T) {
	store := newMemStore()
	store.delay = time.Second
	c := New(store, Config{TTL: time.Minute, StoreTimeout: 10 * time.Millisecond, IsMiss: isMiss}, nil)

	start := time.Now()
	_, ok := c.Get(context.Background(), 1, request(`{"match_all": {}}`))
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int64(1), c.Stats().Errors)
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	store.data["other:key"] = []byte("x")
	c := newCache(store, resilience.CircuitBreakerConfig{})
	var calls atomic.Int64
	for v := int64(1); v <= 2; v++ {
		_, _, err := c.GetOrCompute(context.Background(), v, request(`{"match_all": {}}`), computeWith(&calls, 1))
		require.NoError(t, err)
	}

	n, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, store.data, "other:key")
}

func TestKeyFormat(t *testing.T) {
	c := newCache(newMemStore(), resilience.CircuitBreakerConfig{})
	key, err := c.key(42, request(`{"match_all": {}}`))
	require.NoError(t, err)
	assert.Regexp(t, `^search:v42:[0-9a-f]{32}$`, key)

	_, err = c.key(42, request(`{bad`))
	assert.Error(t, err)
}
