package query

import (
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
)

// TermQuery matches docs containing a term.
type TermQuery struct {
	search.Boosted
	term index.Term
}

func NewTermQuery(t index.Term) *TermQuery {
	return &TermQuery{term: t}
}

func (q *TermQuery) Term() index.Term { return q.term }

func (q *TermQuery) Rewrite(*search.IndexSearcher) (search.Query, error) { return q, nil }

func (q *TermQuery) ExtractTerms(terms map[index.Term]struct{}) {
	terms[q.term] = struct{}{}
}

func (q *TermQuery) Clone() search.Query {
	c := *q
	return &c
}

func (q *TermQuery) String() string {
	return q.term.String() + search.BoostString(q.Boost())
}

func (q *TermQuery) CreateWeight(s *search.IndexSearcher) (search.Weight, error) {
	return &termWeight{query: q, sw: newSimWeight(s, q.term.Field, q.Boost(), q.term)}, nil
}

type termWeight struct {
	query *TermQuery
	sw    *simWeight
}

func (w *termWeight) Query() search.Query            { return w.query }
func (w *termWeight) ValueForNormalization() float64 { return w.sw.valueForNormalization() }
func (w *termWeight) Normalize(norm, topLevelBoost float64) {
	w.sw.normalize(norm, topLevelBoost)
}

func (w *termWeight) Scorer(leaf *index.LeafContext, acceptDocs index.Bits) (search.Scorer, error) {
	pe := leaf.Segment.Postings(w.query.term, acceptDocs)
	if pe == nil {
		return nil, nil
	}
	return &termScorer{PostingsEnum: pe, sw: w.sw, seg: leaf.Segment}, nil
}

func (w *termWeight) Explain(leaf *index.LeafContext, doc int) (*search.Explanation, error) {
	pe := leaf.Segment.Postings(w.query.term, nil)
	if pe == nil || pe.Advance(doc) != doc {
		return search.NoMatch("no matching term"), nil
	}
	desc := "weight(" + w.query.String() + " in " + itoa(doc) + ") [" + similarityName(w.sw.sim) + "]"
	return w.sw.explain(leaf.Segment, doc, float64(pe.Freq()), desc), nil
}

// termScorer scores the docs of one postings list.
type termScorer struct {
	*index.PostingsEnum
	sw  *simWeight
	seg *index.Segment
}

func (s *termScorer) Score() float64 {
	return s.sw.score(s.seg, s.DocID(), float64(s.PostingsEnum.Freq()))
}
