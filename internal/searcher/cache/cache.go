// Package cache keeps search results in Redis, keyed by the index snapshot
// version and a hash of the canonical request. A refresh that changes the
// index changes the version, so stale entries are never read; they expire
// through their TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPrefix(ctx context.Context, prefix string) (int64, error)
}

// IsMiss reports whether a Store.Get error means the key does not exist.
type IsMiss func(err error) bool

// Config tunes a QueryCache.
type Config struct {
	TTL time.Duration
	// StoreTimeout bounds every store round trip; zero leaves it to ctx.
	StoreTimeout time.Duration
	Breaker      resilience.CircuitBreakerConfig
	// IsMiss defaults to the Redis nil reply check.
	IsMiss IsMiss
}

type QueryCache struct {
	store   Store
	cfg     Config
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
}

// New returns a cache over store. Store failures open the breaker, after
// which requests bypass the cache until it half-opens.
func New(store Store, cfg Config, m *metrics.Metrics) *QueryCache {
	if cfg.IsMiss == nil {
		cfg.IsMiss = pkgredis.IsNilError
	}
	if cfg.Breaker.OnStateChange == nil {
		cfg.Breaker.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitState(name, int(to))
		}
	}
	return &QueryCache{
		store:   store,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker("result-cache", cfg.Breaker),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached result for req at version.
func (c *QueryCache) Get(ctx context.Context, version int64, req *executor.Request) (*executor.SearchResult, bool) {
	key, err := c.key(version, req)
	if err != nil {
		return nil, false
	}
	return c.get(ctx, key)
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		v, err := resilience.Call(ctx, c.cfg.StoreTimeout, "cache-get", func(ctx context.Context) ([]byte, error) {
			return c.store.Get(ctx, key)
		})
		if err != nil && c.cfg.IsMiss(err) {
			return nil
		}
		data = v
		return err
	})
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.cfg.StoreTimeout, "cache-set", func(ctx context.Context) error {
			return c.store.Set(ctx, key, data, c.cfg.TTL)
		})
	}); err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for req at version, or runs
// compute once for all concurrent callers asking for the same key and
// stores its result. Cache failures never fail the search.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	version int64,
	req *executor.Request,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	key, err := c.key(version, req)
	if err != nil {
		return nil, false, err
	}
	if result, ok := c.get(ctx, key); ok {
		c.hit(true)
		return result, true, nil
	}
	shared := false
	val, err, _ := c.group.Do(key, func() (any, error) {
		if result, ok := c.get(ctx, key); ok {
			shared = true
			return result, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	c.hit(shared)
	return val.(*executor.SearchResult), shared, nil
}

func (c *QueryCache) hit(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.metrics.ResultCacheHit(hit)
}

// Invalidate deletes every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPrefix(ctx, keyPrefix)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Errors  int64  `json:"errors"`
	Circuit string `json:"circuit"`
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errors.Load(),
		Circuit: c.breaker.GetState().String(),
	}
}

func (c *QueryCache) key(version int64, req *executor.Request) (string, error) {
	canon, err := executor.CacheKey(req)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(canon)
	return fmt.Sprintf("%sv%d:%x", keyPrefix, version, hash[:16]), nil
}
