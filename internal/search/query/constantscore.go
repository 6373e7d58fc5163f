package query

import (
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
)

// ConstantScoreQuery matches the docs of a query or filter and gives each
// the query boost times the query norm.
type ConstantScoreQuery struct {
	search.Boosted
	query  search.Query
	filter search.Filter
}

func NewConstantScoreQuery(q search.Query) *ConstantScoreQuery {
	return &ConstantScoreQuery{query: q}
}

func NewConstantScoreFilterQuery(f search.Filter) *ConstantScoreQuery {
	return &ConstantScoreQuery{filter: f}
}

// Query is nil when a filter is wrapped.
func (q *ConstantScoreQuery) Query() search.Query { return q.query }

// Filter is nil when a query is wrapped.
func (q *ConstantScoreQuery) Filter() search.Filter { return q.filter }

func (q *ConstantScoreQuery) Clone() search.Query {
	c := *q
	return &c
}

func (q *ConstantScoreQuery) Rewrite(s *search.IndexSearcher) (search.Query, error) {
	if q.query == nil {
		return q, nil
	}
	rq, err := q.query.Rewrite(s)
	if err != nil {
		return nil, err
	}
	if rq == q.query {
		return q, nil
	}
	c := NewConstantScoreQuery(rq)
	c.SetBoost(q.Boost())
	return c, nil
}

func (q *ConstantScoreQuery) ExtractTerms(terms map[index.Term]struct{}) {
	if q.query != nil {
		q.query.ExtractTerms(terms)
	}
}

func (q *ConstantScoreQuery) String() string {
	inner := ""
	if q.query != nil {
		inner = q.query.String()
	} else {
		inner = q.filter.String()
	}
	return "ConstantScore(" + inner + ")" + search.BoostString(q.Boost())
}

func (q *ConstantScoreQuery) CreateWeight(s *search.IndexSearcher) (search.Weight, error) {
	w := &constantWeight{query: q, describe: q.String}
	if q.query != nil {
		inner, err := q.query.CreateWeight(s)
		if err != nil {
			return nil, err
		}
		w.inner = inner
	}
	return w, nil
}

// constantWeight gives every matching doc the same score. It serves both
// ConstantScoreQuery and MatchAllDocsQuery.
type constantWeight struct {
	query       search.Query
	describe    func() string
	inner       search.Weight
	queryNorm   float64
	queryWeight float64
	// iterator produces the matches when there is no inner weight.
	iterator func(leaf *index.LeafContext, acceptDocs index.Bits) (search.DocIdSetIterator, error)
}

func (w *constantWeight) Query() search.Query { return w.query }

func (w *constantWeight) ValueForNormalization() float64 {
	w.queryWeight = w.query.Boost()
	return w.queryWeight * w.queryWeight
}

func (w *constantWeight) Normalize(norm, topLevelBoost float64) {
	w.queryNorm = norm * topLevelBoost
	w.queryWeight *= w.queryNorm
	if w.inner != nil {
		w.inner.Normalize(norm, topLevelBoost)
	}
}

func (w *constantWeight) Scorer(leaf *index.LeafContext, acceptDocs index.Bits) (search.Scorer, error) {
	var it search.DocIdSetIterator
	switch {
	case w.inner != nil:
		sc, err := w.inner.Scorer(leaf, acceptDocs)
		if err != nil || sc == nil {
			return nil, err
		}
		it = sc
	case w.iterator != nil:
		var err error
		if it, err = w.iterator(leaf, acceptDocs); err != nil {
			return nil, err
		}
	default:
		csq := w.query.(*ConstantScoreQuery)
		set, err := csq.filter.DocIdSet(leaf, acceptDocs)
		if err != nil || set == nil {
			return nil, err
		}
		it = set.Iterator()
	}
	if it == nil {
		return nil, nil
	}
	return &constantScorer{DocIdSetIterator: it, score: w.queryWeight}, nil
}

func (w *constantWeight) Explain(leaf *index.LeafContext, doc int) (*search.Explanation, error) {
	sc, err := w.Scorer(leaf, leaf.Segment.LiveDocs())
	if err != nil {
		return nil, err
	}
	if sc == nil || sc.Advance(doc) != doc {
		return search.NoMatch(w.describe() + " doesn't match id " + itoa(doc)), nil
	}
	return search.Matched(w.queryWeight, w.describe()+", product of:",
		search.Factor(w.query.Boost(), "boost"),
		search.Factor(w.queryNorm, "queryNorm"),
	), nil
}

type constantScorer struct {
	search.DocIdSetIterator
	score float64
}

func (s *constantScorer) Score() float64 { return s.score }
func (s *constantScorer) Freq() int      { return 1 }

// MatchAllDocsQuery matches every live doc with a constant score.
type MatchAllDocsQuery struct {
	search.Boosted
}

func NewMatchAllDocsQuery() *MatchAllDocsQuery { return &MatchAllDocsQuery{} }

func (q *MatchAllDocsQuery) Rewrite(*search.IndexSearcher) (search.Query, error) { return q, nil }
func (q *MatchAllDocsQuery) ExtractTerms(map[index.Term]struct{})      {}

func (q *MatchAllDocsQuery) Clone() search.Query {
	c := *q
	return &c
}

func (q *MatchAllDocsQuery) String() string {
	return "*:*" + search.BoostString(q.Boost())
}

func (q *MatchAllDocsQuery) CreateWeight(*search.IndexSearcher) (search.Weight, error) {
	return &constantWeight{
		query:    q,
		describe: func() string { return "MatchAllDocsQuery" },
		iterator: func(leaf *index.LeafContext, acceptDocs index.Bits) (search.DocIdSetIterator, error) {
			return &allDocsIterator{doc: -1, maxDoc: leaf.Segment.MaxDoc(), accept: acceptDocs}, nil
		},
	}, nil
}

type allDocsIterator struct {
	doc    int
	maxDoc int
	accept index.Bits
}

func (it *allDocsIterator) DocID() int   { return it.doc }
func (it *allDocsIterator) Cost() int64  { return int64(it.maxDoc) }
func (it *allDocsIterator) NextDoc() int { return it.Advance(it.doc + 1) }

func (it *allDocsIterator) Advance(target int) int {
	for doc := target; doc < it.maxDoc; doc++ {
		if it.accept == nil || it.accept.Get(doc) {
			it.doc = doc
			return doc
		}
	}
	it.doc = search.NoMoreDocs
	return it.doc
}
