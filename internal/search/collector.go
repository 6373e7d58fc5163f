package search

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
)

// Collector receives every matching doc of a search, segment by segment.
// Collectors are driven by one goroutine at a time.
type Collector interface {
	SetNextReader(leaf *index.LeafContext) error
	SetScorer(s Scorer)
	// Collect is called with segment-local doc ids in increasing order.
	Collect(doc int) error
}

// TopScoreDocCollector keeps the n best hits by score, ties broken by
// ascending doc id.
type TopScoreDocCollector struct {
	n        int
	heap     topHeap
	total    int
	maxScore float64
	docBase  int
	scorer   Scorer
}

func NewTopScoreDocCollector(n int) *TopScoreDocCollector {
	return &TopScoreDocCollector{
		n:        n,
		heap:     topHeap{order: byRelevance},
		maxScore: math.Inf(-1),
	}
}

func (c *TopScoreDocCollector) SetNextReader(leaf *index.LeafContext) error {
	c.docBase = leaf.DocBase
	return nil
}

func (c *TopScoreDocCollector) SetScorer(s Scorer) { c.scorer = s }

func (c *TopScoreDocCollector) Collect(doc int) error {
	score := c.scorer.Score()
	c.total++
	if score > c.maxScore {
		c.maxScore = score
	}
	c.heap.offer(ScoreDoc{Doc: c.docBase + doc, Score: score}, c.n)
	return nil
}

// TopDocs returns the collected hits, best first.
func (c *TopScoreDocCollector) TopDocs() *TopDocs {
	td := &TopDocs{TotalHits: c.total, ScoreDocs: c.heap.drain()}
	if c.total > 0 {
		td.MaxScore = c.maxScore
	}
	return td
}

// TotalHitCountCollector only counts matches.
type TotalHitCountCollector struct {
	total int
}

func (c *TotalHitCountCollector) SetNextReader(*index.LeafContext) error { return nil }
func (c *TotalHitCountCollector) SetScorer(Scorer)                      {}
func (c *TotalHitCountCollector) Collect(int) error {
	c.total++
	return nil
}

func (c *TotalHitCountCollector) TotalHits() int { return c.total }

// CollectorFunc collects through a callback receiving the reader-global
// doc id and its score.
type CollectorFunc func(doc int, score float64) error

type funcCollector struct {
	fn      CollectorFunc
	docBase int
	scorer  Scorer
}

// NewFuncCollector wraps fn as a Collector.
func NewFuncCollector(fn CollectorFunc) Collector {
	return &funcCollector{fn: fn}
}

func (c *funcCollector) SetNextReader(leaf *index.LeafContext) error {
	c.docBase = leaf.DocBase
	return nil
}

func (c *funcCollector) SetScorer(s Scorer) { c.scorer = s }

func (c *funcCollector) Collect(doc int) error {
	return c.fn(c.docBase+doc, c.scorer.Score())
}
