// Package search implements query scoring over an index.Reader: the
// DocIdSet and Scorer contracts, the searcher with per-segment concurrent
// collection, filtering, sorting and score explanations.
package search

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search/fieldcache"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/metrics"
)

const DefaultMaxClauseCount = 1024

// Config carries the settings that used to be process-wide. The zero value
// of each field selects its default.
type Config struct {
	MaxClauseCount int
	// Concurrency bounds how many segments are scored at once.
	Concurrency int
	Similarity  Similarity
	FieldCache  *fieldcache.Cache
	Metrics     *metrics.Metrics
}

func DefaultConfig() Config {
	return Config{
		MaxClauseCount: DefaultMaxClauseCount,
		Concurrency:    4,
		Similarity:     DefaultSimilarity{},
	}
}

func (c Config) withDefaults() Config {
	if c.MaxClauseCount <= 0 {
		c.MaxClauseCount = DefaultMaxClauseCount
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.Similarity == nil {
		c.Similarity = DefaultSimilarity{}
	}
	return c
}

// IndexSearcher runs queries against one Reader snapshot. It is safe for
// concurrent use.
type IndexSearcher struct {
	reader *index.Reader
	cfg    Config
	logger *slog.Logger

	fcOnce sync.Once
	fc     *fieldcache.Cache
}

func NewIndexSearcher(r *index.Reader, cfg Config) *IndexSearcher {
	return &IndexSearcher{
		reader: r,
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "searcher"),
	}
}

func (s *IndexSearcher) Reader() *index.Reader        { return s.reader }
func (s *IndexSearcher) Similarity() Similarity       { return s.cfg.Similarity }
func (s *IndexSearcher) SetSimilarity(sim Similarity) { s.cfg.Similarity = sim }
func (s *IndexSearcher) Config() Config               { return s.cfg }
func (s *IndexSearcher) MaxClauseCount() int          { return s.cfg.MaxClauseCount }
func (s *IndexSearcher) MaxDoc() int                  { return s.reader.MaxDoc() }

// FieldCache returns the configured cache, or a cache private to this
// searcher when none was configured.
func (s *IndexSearcher) FieldCache() *fieldcache.Cache {
	s.fcOnce.Do(func() {
		s.fc = s.cfg.FieldCache
		if s.fc == nil {
			s.fc = fieldcache.New(s.cfg.Metrics)
		}
	})
	return s.fc
}

func (s *IndexSearcher) DocFreq(term index.Term) int { return s.reader.DocFreq(term) }

// Doc returns the stored fields of a reader-global doc id.
func (s *IndexSearcher) Doc(doc int) (index.StoredDocument, error) {
	return s.reader.Document(doc)
}

// Rewrite rewrites q until it reaches a fixed point.
func (s *IndexSearcher) Rewrite(q Query) (Query, error) {
	for {
		r, err := q.Rewrite(s)
		if err != nil {
			return nil, fmt.Errorf("rewriting %s: %w", q, err)
		}
		if r == q {
			return q, nil
		}
		q = r
	}
}

// CreateNormalizedWeight rewrites q, builds its weight and applies the
// query norm.
func (s *IndexSearcher) CreateNormalizedWeight(q Query) (Weight, error) {
	q, err := s.Rewrite(q)
	if err != nil {
		return nil, err
	}
	w, err := q.CreateWeight(s)
	if err != nil {
		return nil, err
	}
	norm := s.cfg.Similarity.QueryNorm(w.ValueForNormalization())
	if math.IsInf(norm, 0) || math.IsNaN(norm) {
		norm = 1
	}
	w.Normalize(norm, 1)
	return w, nil
}

// wrapFilter restricts q to f with the default filter strategy.
func wrapFilter(q Query, f Filter) (Query, error) {
	if f == nil {
		return q, nil
	}
	return NewFilteredQuery(q, f, DefaultFilterStrategy)
}

func (s *IndexSearcher) checkLimit(n int) (int, error) {
	if n < 1 {
		return 0, apperrors.Invalidf("result limit must be positive, got %d", n)
	}
	return min(n, max(1, s.reader.MaxDoc())), nil
}

// Search returns the n best hits of q restricted to f, which may be nil.
func (s *IndexSearcher) Search(q Query, f Filter, n int) (*TopDocs, error) {
	start := time.Now()
	n, err := s.checkLimit(n)
	if err != nil {
		return nil, err
	}
	q, err = wrapFilter(q, f)
	if err != nil {
		return nil, err
	}
	w, err := s.CreateNormalizedWeight(q)
	if err != nil {
		return nil, err
	}
	parts, err := s.eachLeaf(func(leaf *index.LeafContext) (*TopDocs, error) {
		c := NewTopScoreDocCollector(n)
		if err := s.collectLeaf(w, leaf, c); err != nil {
			return nil, err
		}
		return c.TopDocs(), nil
	})
	if err != nil {
		return nil, err
	}
	td := mergeTopDocs(parts, n, byRelevance)
	s.cfg.Metrics.SearchExecuted("relevance", time.Since(start), td.TotalHits)
	s.logger.Debug("search executed", "query", q.String(), "total_hits", td.TotalHits, "elapsed", time.Since(start))
	return td, nil
}

// SearchSorted returns the n first hits of q restricted to f in sort
// order. ScoreDoc.Fields holds the sort values of each hit.
func (s *IndexSearcher) SearchSorted(q Query, f Filter, n int, sort Sort) (*TopDocs, error) {
	start := time.Now()
	if err := sort.validate(); err != nil {
		return nil, err
	}
	n, err := s.checkLimit(n)
	if err != nil {
		return nil, err
	}
	q, err = wrapFilter(q, f)
	if err != nil {
		return nil, err
	}
	w, err := s.CreateNormalizedWeight(q)
	if err != nil {
		return nil, err
	}
	order := sort.order()
	fc := s.FieldCache()
	parts, err := s.eachLeaf(func(leaf *index.LeafContext) (*TopDocs, error) {
		sc, err := w.Scorer(leaf, leaf.Segment.LiveDocs())
		if err != nil || sc == nil {
			return nil, err
		}
		values, err := sort.leafValues(fc, leaf)
		if err != nil {
			return nil, err
		}
		c := &topFieldCollector{n: n, heap: topHeap{order: order}, values: values, base: leaf.DocBase, scorer: sc}
		for doc := sc.NextDoc(); doc != NoMoreDocs; doc = sc.NextDoc() {
			c.collect(doc)
		}
		return &TopDocs{TotalHits: c.total, ScoreDocs: c.heap.drain(), MaxScore: c.max}, nil
	})
	if err != nil {
		return nil, err
	}
	td := mergeTopDocs(parts, n, order)
	s.cfg.Metrics.SearchExecuted("sorted", time.Since(start), td.TotalHits)
	return td, nil
}

// SearchWithCollector feeds every hit of q restricted to f to c, segment by
// segment in doc order.
func (s *IndexSearcher) SearchWithCollector(q Query, f Filter, c Collector) error {
	q, err := wrapFilter(q, f)
	if err != nil {
		return err
	}
	w, err := s.CreateNormalizedWeight(q)
	if err != nil {
		return err
	}
	for _, leaf := range s.reader.Leaves() {
		if err := s.collectLeaf(w, leaf, c); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of docs matching q.
func (s *IndexSearcher) Count(q Query) (int, error) {
	var c TotalHitCountCollector
	if err := s.SearchWithCollector(q, nil, &c); err != nil {
		return 0, err
	}
	return c.TotalHits(), nil
}

func (s *IndexSearcher) collectLeaf(w Weight, leaf *index.LeafContext, c Collector) error {
	if err := c.SetNextReader(leaf); err != nil {
		return err
	}
	sc, err := w.Scorer(leaf, leaf.Segment.LiveDocs())
	if err != nil {
		return fmt.Errorf("scoring segment %s: %w", leaf.Segment.Name(), err)
	}
	if sc == nil {
		return nil
	}
	c.SetScorer(sc)
	for doc := sc.NextDoc(); doc != NoMoreDocs; doc = sc.NextDoc() {
		if err := c.Collect(doc); err != nil {
			return err
		}
	}
	return nil
}

// eachLeaf runs fn over every segment with bounded concurrency. Results
// are indexed by leaf ordinal so merging stays deterministic.
func (s *IndexSearcher) eachLeaf(fn func(leaf *index.LeafContext) (*TopDocs, error)) ([]*TopDocs, error) {
	leaves := s.reader.Leaves()
	parts := make([]*TopDocs, len(leaves))
	if len(leaves) == 1 || s.cfg.Concurrency == 1 {
		for i, leaf := range leaves {
			td, err := fn(leaf)
			if err != nil {
				return nil, err
			}
			parts[i] = td
		}
		return parts, nil
	}
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, leaf := range leaves {
		g.Go(func() error {
			td, err := fn(leaf)
			if err != nil {
				return err
			}
			parts[i] = td
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

// Explain describes how q scores the reader-global doc.
func (s *IndexSearcher) Explain(q Query, doc int) (*Explanation, error) {
	leaf, err := s.reader.LeafFor(doc)
	if err != nil {
		return nil, err
	}
	w, err := s.CreateNormalizedWeight(q)
	if err != nil {
		return nil, err
	}
	return w.Explain(leaf, doc-leaf.DocBase)
}
