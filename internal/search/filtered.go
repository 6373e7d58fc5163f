package search

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

// DefaultRandomAccessThreshold is the first-filter-doc bound below which
// filter bits are pushed down into the query scorer.
const DefaultRandomAccessThreshold = 100

// FilterStrategy decides how a query scorer and a filter set are
// intersected for one segment.
type FilterStrategy interface {
	// FilteredScorer returns nil when nothing can match. The filter set was
	// built with the segment's accept docs already applied.
	FilteredScorer(leaf *index.LeafContext, w Weight, set DocIdSet) (Scorer, error)
	String() string
}

// RandomAccessFilterStrategy pushes the filter's Bits down into the query
// scorer when the filter supports random access and UseRandomAccess agrees.
// Otherwise the filter leads a leapfrog intersection.
type RandomAccessFilterStrategy struct {
	// Threshold is used by the default heuristic: random access is chosen
	// when the first filter doc is below it. Zero means 100.
	Threshold int
	// UseRandomAccess replaces the threshold heuristic when set.
	UseRandomAccess func(bits index.Bits, firstFilterDoc int) bool
}

func (s RandomAccessFilterStrategy) useRandomAccess(bits index.Bits, first int) bool {
	if s.UseRandomAccess != nil {
		return s.UseRandomAccess(bits, first)
	}
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = DefaultRandomAccessThreshold
	}
	return first < threshold
}

func (s RandomAccessFilterStrategy) FilteredScorer(leaf *index.LeafContext, w Weight, set DocIdSet) (Scorer, error) {
	it := iteratorOf(set)
	if it == nil {
		return nil, nil
	}
	first := it.NextDoc()
	if first == NoMoreDocs {
		return nil, nil
	}
	if bits := set.Bits(); bits != nil && s.useRandomAccess(bits, first) {
		return w.Scorer(leaf, bits)
	}
	sc, err := w.Scorer(leaf, nil)
	if err != nil || sc == nil {
		return nil, err
	}
	lf := newLeapFrogScorer(it, sc, sc)
	lf.primaryDoc = first
	lf.primaryStarted = true
	return lf, nil
}

func (s RandomAccessFilterStrategy) String() string { return "random_access" }

type leapFrogStrategy struct {
	queryFirst bool
}

func (s leapFrogStrategy) FilteredScorer(leaf *index.LeafContext, w Weight, set DocIdSet) (Scorer, error) {
	it := iteratorOf(set)
	if it == nil {
		return nil, nil
	}
	sc, err := w.Scorer(leaf, nil)
	if err != nil || sc == nil {
		return nil, err
	}
	if s.queryFirst {
		return newLeapFrogScorer(sc, it, sc), nil
	}
	return newLeapFrogScorer(it, sc, sc), nil
}

func (s leapFrogStrategy) String() string {
	if s.queryFirst {
		return "leap_frog_query_first"
	}
	return "leap_frog_filter_first"
}

type queryFirstStrategy struct{}

// FilteredScorer drives from the query and tests filter membership through
// Bits, falling back to a query-first leapfrog without random access.
func (queryFirstStrategy) FilteredScorer(leaf *index.LeafContext, w Weight, set DocIdSet) (Scorer, error) {
	it := iteratorOf(set)
	if it == nil {
		return nil, nil
	}
	bits := set.Bits()
	if bits == nil {
		return LeapFrogQueryFirstStrategy.FilteredScorer(leaf, w, set)
	}
	sc, err := w.Scorer(leaf, nil)
	if err != nil || sc == nil {
		return nil, err
	}
	return &queryFirstScorer{Scorer: sc, bits: bits, doc: -1}, nil
}

func (queryFirstStrategy) String() string { return "query_first" }

// Filter strategies.
var (
	DefaultFilterStrategy       FilterStrategy = RandomAccessFilterStrategy{}
	LeapFrogQueryFirstStrategy  FilterStrategy = leapFrogStrategy{queryFirst: true}
	LeapFrogFilterFirstStrategy FilterStrategy = leapFrogStrategy{}
	QueryFirstFilterStrategy    FilterStrategy = queryFirstStrategy{}
)

// leapFrogScorer intersects two iterators by advancing whichever is
// behind. The primary moves first; the secondary is only ever advanced.
type leapFrogScorer struct {
	primary, secondary DocIdSetIterator
	scorer             Scorer

	primaryDoc     int
	secondaryDoc   int
	doc            int
	primaryStarted bool
}

func newLeapFrogScorer(primary, secondary DocIdSetIterator, scorer Scorer) *leapFrogScorer {
	return &leapFrogScorer{primary: primary, secondary: secondary, scorer: scorer, primaryDoc: -1, secondaryDoc: -1, doc: -1}
}

func (l *leapFrogScorer) advanceToCommon() int {
	for {
		switch {
		case l.secondaryDoc < l.primaryDoc:
			l.secondaryDoc = l.secondary.Advance(l.primaryDoc)
		case l.secondaryDoc == l.primaryDoc:
			return l.primaryDoc
		default:
			l.primaryDoc = l.primary.Advance(l.secondaryDoc)
		}
	}
}

func (l *leapFrogScorer) NextDoc() int {
	if l.primaryStarted {
		// primary was positioned by the strategy
		l.primaryStarted = false
	} else {
		l.primaryDoc = l.primary.NextDoc()
	}
	l.doc = l.advanceToCommon()
	return l.doc
}

func (l *leapFrogScorer) Advance(target int) int {
	l.primaryStarted = false
	if target > l.primaryDoc {
		l.primaryDoc = l.primary.Advance(target)
	}
	l.doc = l.advanceToCommon()
	return l.doc
}

func (l *leapFrogScorer) DocID() int     { return l.doc }
func (l *leapFrogScorer) Score() float64 { return l.scorer.Score() }
func (l *leapFrogScorer) Freq() int      { return l.scorer.Freq() }
func (l *leapFrogScorer) Cost() int64    { return min(l.primary.Cost(), l.secondary.Cost()) }

// queryFirstScorer skips query matches rejected by the filter bits.
type queryFirstScorer struct {
	Scorer
	bits index.Bits
	doc  int
}

func (q *queryFirstScorer) DocID() int { return q.doc }

func (q *queryFirstScorer) NextDoc() int {
	return q.skip(q.Scorer.NextDoc())
}

func (q *queryFirstScorer) Advance(target int) int {
	return q.skip(q.Scorer.Advance(target))
}

func (q *queryFirstScorer) skip(doc int) int {
	for doc != NoMoreDocs && !q.bits.Get(doc) {
		doc = q.Scorer.NextDoc()
	}
	q.doc = doc
	return doc
}

// FilteredQuery matches the docs of a query that pass a filter, scored by
// the query alone.
type FilteredQuery struct {
	Boosted
	query    Query
	filter   Filter
	strategy FilterStrategy
}

// NewFilteredQuery requires a query and a filter; a nil strategy selects
// DefaultFilterStrategy.
func NewFilteredQuery(q Query, f Filter, strategy FilterStrategy) (*FilteredQuery, error) {
	if q == nil || f == nil {
		return nil, apperrors.Invalidf("filtered query needs both a query and a filter")
	}
	if strategy == nil {
		strategy = DefaultFilterStrategy
	}
	return &FilteredQuery{query: q, filter: f, strategy: strategy}, nil
}

func (fq *FilteredQuery) Query() Query             { return fq.query }
func (fq *FilteredQuery) Filter() Filter           { return fq.filter }
func (fq *FilteredQuery) Strategy() FilterStrategy { return fq.strategy }

func (fq *FilteredQuery) Rewrite(s *IndexSearcher) (Query, error) {
	rq, err := fq.query.Rewrite(s)
	if err != nil {
		return nil, err
	}
	if rq == fq.query {
		return fq, nil
	}
	c := fq.Clone().(*FilteredQuery)
	c.query = rq
	return c, nil
}

func (fq *FilteredQuery) ExtractTerms(terms map[index.Term]struct{}) {
	fq.query.ExtractTerms(terms)
}

func (fq *FilteredQuery) Clone() Query {
	c := *fq
	return &c
}

func (fq *FilteredQuery) String() string {
	return fmt.Sprintf("filtered(%s)->%s%s", fq.query, fq.filter, BoostString(fq.Boost()))
}

func (fq *FilteredQuery) CreateWeight(s *IndexSearcher) (Weight, error) {
	inner, err := fq.query.CreateWeight(s)
	if err != nil {
		return nil, err
	}
	return &filteredWeight{query: fq, inner: inner}, nil
}

type filteredWeight struct {
	query *FilteredQuery
	inner Weight
}

func (w *filteredWeight) Query() Query { return w.query }

func (w *filteredWeight) ValueForNormalization() float64 {
	b := w.query.Boost()
	return w.inner.ValueForNormalization() * b * b
}

func (w *filteredWeight) Normalize(norm, topLevelBoost float64) {
	w.inner.Normalize(norm, topLevelBoost*w.query.Boost())
}

func (w *filteredWeight) Scorer(leaf *index.LeafContext, acceptDocs index.Bits) (Scorer, error) {
	set, err := w.query.filter.DocIdSet(leaf, acceptDocs)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", w.query.filter, err)
	}
	if set == nil {
		return nil, nil
	}
	return w.query.strategy.FilteredScorer(leaf, w.inner, set)
}

func (w *filteredWeight) Explain(leaf *index.LeafContext, doc int) (*Explanation, error) {
	inner, err := w.inner.Explain(leaf, doc)
	if err != nil {
		return nil, err
	}
	set, err := w.query.filter.DocIdSet(leaf, leaf.Segment.LiveDocs())
	if err != nil {
		return nil, err
	}
	it := iteratorOf(set)
	if it != nil && it.Advance(doc) == doc {
		return inner, nil
	}
	return NoMatch("failure to match filter: "+w.query.filter.String(), inner), nil
}
