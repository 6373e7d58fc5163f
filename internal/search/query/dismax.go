package query

import (
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
)

// DisjunctionMaxQuery matches docs matching any disjunct and scores them
// with the best disjunct score plus tieBreaker times the other matching
// disjunct scores.
type DisjunctionMaxQuery struct {
	search.Boosted
	disjuncts  []search.Query
	tieBreaker float64
}

func NewDisjunctionMaxQuery(tieBreaker float64, disjuncts ...search.Query) *DisjunctionMaxQuery {
	return &DisjunctionMaxQuery{tieBreaker: tieBreaker, disjuncts: disjuncts}
}

func (q *DisjunctionMaxQuery) Add(disjuncts ...search.Query) *DisjunctionMaxQuery {
	q.disjuncts = append(q.disjuncts, disjuncts...)
	return q
}

func (q *DisjunctionMaxQuery) Disjuncts() []search.Query { return q.disjuncts }
func (q *DisjunctionMaxQuery) TieBreaker() float64       { return q.tieBreaker }

func (q *DisjunctionMaxQuery) Clone() search.Query {
	c := *q
	c.disjuncts = append([]search.Query(nil), q.disjuncts...)
	return &c
}

func (q *DisjunctionMaxQuery) Rewrite(s *search.IndexSearcher) (search.Query, error) {
	if len(q.disjuncts) == 1 {
		sub := q.disjuncts[0]
		rq, err := sub.Rewrite(s)
		if err != nil {
			return nil, err
		}
		if q.Boost() != 1 {
			if rq == sub {
				rq = rq.Clone()
			}
			rq.SetBoost(q.Boost() * rq.Boost())
		}
		return rq, nil
	}
	var clone *DisjunctionMaxQuery
	for i, d := range q.disjuncts {
		rq, err := d.Rewrite(s)
		if err != nil {
			return nil, err
		}
		if rq != d {
			if clone == nil {
				clone = q.Clone().(*DisjunctionMaxQuery)
			}
			clone.disjuncts[i] = rq
		}
	}
	if clone != nil {
		return clone, nil
	}
	return q, nil
}

func (q *DisjunctionMaxQuery) ExtractTerms(terms map[index.Term]struct{}) {
	for _, d := range q.disjuncts {
		d.ExtractTerms(terms)
	}
}

func (q *DisjunctionMaxQuery) String() string {
	parts := make([]string, len(q.disjuncts))
	for i, d := range q.disjuncts {
		if _, nested := d.(*BooleanQuery); nested {
			parts[i] = "(" + d.String() + ")"
		} else {
			parts[i] = d.String()
		}
	}
	s := "(" + strings.Join(parts, " | ") + ")"
	if q.tieBreaker != 0 {
		s += "~" + strconv.FormatFloat(q.tieBreaker, 'g', -1, 64)
	}
	return s + search.BoostString(q.Boost())
}

func (q *DisjunctionMaxQuery) CreateWeight(s *search.IndexSearcher) (search.Weight, error) {
	w := &disMaxWeight{query: q}
	for _, d := range q.disjuncts {
		dw, err := d.CreateWeight(s)
		if err != nil {
			return nil, err
		}
		w.weights = append(w.weights, dw)
	}
	return w, nil
}

type disMaxWeight struct {
	query   *DisjunctionMaxQuery
	weights []search.Weight
}

func (w *disMaxWeight) Query() search.Query { return w.query }

func (w *disMaxWeight) ValueForNormalization() float64 {
	sum, maxValue := 0.0, 0.0
	for _, dw := range w.weights {
		v := dw.ValueForNormalization()
		sum += v
		maxValue = max(maxValue, v)
	}
	tie := w.query.tieBreaker
	b := w.query.Boost()
	return ((sum-maxValue)*tie*tie + maxValue) * b * b
}

func (w *disMaxWeight) Normalize(norm, topLevelBoost float64) {
	topLevelBoost *= w.query.Boost()
	for _, dw := range w.weights {
		dw.Normalize(norm, topLevelBoost)
	}
}

func (w *disMaxWeight) Scorer(leaf *index.LeafContext, acceptDocs index.Bits) (search.Scorer, error) {
	var subs []search.Scorer
	for _, dw := range w.weights {
		sc, err := dw.Scorer(leaf, acceptDocs)
		if err != nil {
			return nil, err
		}
		if sc != nil {
			subs = append(subs, sc)
		}
	}
	if len(subs) == 0 {
		return nil, nil
	}
	return &disMaxScorer{disjunctionScorer: newDisjunctionScorer(subs, 1), tieBreaker: w.query.tieBreaker}, nil
}

func (w *disMaxWeight) Explain(leaf *index.LeafContext, doc int) (*search.Explanation, error) {
	if len(w.weights) == 1 {
		return w.weights[0].Explain(leaf, doc)
	}
	var details []*search.Explanation
	sum, maxValue := 0.0, 0.0
	for _, dw := range w.weights {
		e, err := dw.Explain(leaf, doc)
		if err != nil {
			return nil, err
		}
		if e.Match {
			details = append(details, e)
			sum += e.Value
			maxValue = max(maxValue, e.Value)
		}
	}
	if len(details) == 0 {
		return search.NoMatch("No matching clause"), nil
	}
	tie := w.query.tieBreaker
	desc := "max of:"
	if tie != 0 {
		desc = "max plus " + strconv.FormatFloat(tie, 'g', -1, 64) + " times others of:"
	}
	return search.Matched(maxValue+(sum-maxValue)*tie, desc, details...), nil
}

// disMaxScorer rescores a disjunction as max + tieBreaker * (sum - max).
type disMaxScorer struct {
	*disjunctionScorer
	tieBreaker float64
}

func (s *disMaxScorer) Score() float64 {
	sum, maxScore := 0.0, 0.0
	for i, sub := range s.current {
		v := sub.Score()
		sum += v
		if i == 0 || v > maxScore {
			maxScore = v
		}
	}
	return maxScore + (sum-maxScore)*s.tieBreaker
}

// matched hides the disjunction's clause count: a dis-max query is one
// clause to an enclosing boolean query.
func (s *disMaxScorer) matched() int { return 1 }
