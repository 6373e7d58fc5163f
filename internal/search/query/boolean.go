package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

// Occur is the role of a clause in a BooleanQuery.
type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	default:
		return ""
	}
}

// ParseOccur maps "must", "should" and "must_not" to an Occur.
func ParseOccur(s string) (Occur, error) {
	switch strings.ToLower(s) {
	case "must":
		return Must, nil
	case "should":
		return Should, nil
	case "must_not", "mustnot":
		return MustNot, nil
	}
	return 0, apperrors.Invalidf("unknown occur %q", s)
}

type BooleanClause struct {
	Query search.Query
	Occur Occur
}

func (c BooleanClause) required() bool   { return c.Occur == Must }
func (c BooleanClause) prohibited() bool { return c.Occur == MustNot }

// BooleanQuery combines clauses.
//
// A doc matches when it matches every Must clause, no MustNot clause, and
// at least MinimumShouldMatch Should clauses. Without Must clauses at least
// one Should clause has to match. The score is the sum of the matching
// clause scores times coord(matching, non-prohibited clauses) unless coord
// is disabled.
type BooleanQuery struct {
	search.Boosted
	clauses        []BooleanClause
	disableCoord   bool
	minShouldMatch int
}

func NewBooleanQuery(disableCoord bool) *BooleanQuery {
	return &BooleanQuery{disableCoord: disableCoord}
}

// Add appends a clause and returns q.
func (q *BooleanQuery) Add(sub search.Query, occur Occur) *BooleanQuery {
	q.clauses = append(q.clauses, BooleanClause{Query: sub, Occur: occur})
	return q
}

func (q *BooleanQuery) Clauses() []BooleanClause { return q.clauses }
func (q *BooleanQuery) CoordDisabled() bool      { return q.disableCoord }
func (q *BooleanQuery) MinimumShouldMatch() int  { return q.minShouldMatch }

// SetMinimumShouldMatch sets how many Should clauses must match. Values
// above the number of Should clauses make the query match nothing.
func (q *BooleanQuery) SetMinimumShouldMatch(n int) {
	q.minShouldMatch = n
}

func (q *BooleanQuery) Clone() search.Query {
	c := *q
	c.clauses = append([]BooleanClause(nil), q.clauses...)
	return &c
}

func (q *BooleanQuery) Rewrite(s *search.IndexSearcher) (search.Query, error) {
	if q.minShouldMatch == 0 && len(q.clauses) == 1 && !q.clauses[0].prohibited() {
		sub := q.clauses[0].Query
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
	var clone *BooleanQuery
	for i, c := range q.clauses {
		rq, err := c.Query.Rewrite(s)
		if err != nil {
			return nil, err
		}
		if rq != c.Query {
			if clone == nil {
				clone = q.Clone().(*BooleanQuery)
			}
			clone.clauses[i] = BooleanClause{Query: rq, Occur: c.Occur}
		}
	}
	if clone != nil {
		return clone, nil
	}
	return q, nil
}

func (q *BooleanQuery) ExtractTerms(terms map[index.Term]struct{}) {
	for _, c := range q.clauses {
		if !c.prohibited() {
			c.Query.ExtractTerms(terms)
		}
	}
}

func (q *BooleanQuery) String() string {
	var b strings.Builder
	parens := q.Boost() != 1 || q.minShouldMatch > 0
	if parens {
		b.WriteByte('(')
	}
	for i, c := range q.clauses {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(c.Occur.String())
		if _, nested := c.Query.(*BooleanQuery); nested {
			b.WriteString("(" + c.Query.String() + ")")
		} else {
			b.WriteString(c.Query.String())
		}
	}
	if parens {
		b.WriteByte(')')
	}
	if q.minShouldMatch > 0 {
		b.WriteString("~" + strconv.Itoa(q.minShouldMatch))
	}
	b.WriteString(search.BoostString(q.Boost()))
	return b.String()
}

func (q *BooleanQuery) CreateWeight(s *search.IndexSearcher) (search.Weight, error) {
	if len(q.clauses) > s.MaxClauseCount() {
		return nil, fmt.Errorf("%w: %d clauses exceed the limit of %d",
			apperrors.ErrTooManyClauses, len(q.clauses), s.MaxClauseCount())
	}
	w := &booleanWeight{query: q, sim: s.Similarity(), disableCoord: q.disableCoord}
	for _, c := range q.clauses {
		cw, err := c.Query.CreateWeight(s)
		if err != nil {
			return nil, err
		}
		w.weights = append(w.weights, cw)
		if !c.prohibited() {
			w.maxCoord++
		}
	}
	return w, nil
}

type booleanWeight struct {
	query        *BooleanQuery
	sim          search.Similarity
	weights      []search.Weight
	maxCoord     int
	disableCoord bool
}

func (w *booleanWeight) Query() search.Query { return w.query }

func (w *booleanWeight) ValueForNormalization() float64 {
	sum := 0.0
	for i, cw := range w.weights {
		if !w.query.clauses[i].prohibited() {
			sum += cw.ValueForNormalization()
		}
	}
	b := w.query.Boost()
	return sum * b * b
}

func (w *booleanWeight) Normalize(norm, topLevelBoost float64) {
	topLevelBoost *= w.query.Boost()
	for _, cw := range w.weights {
		cw.Normalize(norm, topLevelBoost)
	}
}

func (w *booleanWeight) coord(overlap, maxOverlap int) float64 {
	if w.disableCoord || maxOverlap == 1 {
		return 1
	}
	return w.sim.Coord(overlap, maxOverlap)
}

func (w *booleanWeight) Scorer(leaf *index.LeafContext, acceptDocs index.Bits) (search.Scorer, error) {
	var required, optional, prohibited []search.Scorer
	for i, cw := range w.weights {
		c := w.query.clauses[i]
		sc, err := cw.Scorer(leaf, acceptDocs)
		if err != nil {
			return nil, err
		}
		switch {
		case sc == nil:
			if c.required() {
				return nil, nil
			}
		case c.required():
			required = append(required, sc)
		case c.prohibited():
			prohibited = append(prohibited, sc)
		default:
			optional = append(optional, sc)
		}
	}
	if len(required) == 0 && len(optional) == 0 {
		return nil, nil
	}
	msm := w.query.minShouldMatch
	if len(optional) < msm {
		return nil, nil
	}

	var inner search.Scorer
	switch {
	case len(required) == 0:
		inner = disjunctionOrSingle(optional, max(1, msm))
	case len(optional) == msm:
		inner = conjunctionOrSingle(append(required, optional...))
	case msm > 0:
		inner = newConjunctionScorer([]search.Scorer{
			conjunctionOrSingle(required),
			newDisjunctionScorer(optional, msm),
		})
	default:
		inner = &reqOptScorer{req: conjunctionOrSingle(required), opt: disjunctionOrSingle(optional, 1)}
	}
	if len(prohibited) > 0 {
		inner = newReqExclScorer(inner, disjunctionOrSingle(prohibited, 1))
	}

	coords := make([]float64, w.maxCoord+1)
	for i := range coords {
		coords[i] = w.coord(i, w.maxCoord)
	}
	return &booleanScorer{inner: inner, coords: coords}, nil
}

func conjunctionOrSingle(subs []search.Scorer) search.Scorer {
	if len(subs) == 1 {
		return subs[0]
	}
	return newConjunctionScorer(subs)
}

func disjunctionOrSingle(subs []search.Scorer, minMatch int) search.Scorer {
	if len(subs) == 1 && minMatch <= 1 {
		return subs[0]
	}
	if len(subs) == minMatch {
		return newConjunctionScorer(subs)
	}
	return newDisjunctionScorer(subs, minMatch)
}

func (w *booleanWeight) Explain(leaf *index.LeafContext, doc int) (*search.Explanation, error) {
	sumExpl := search.Matched(0, "sum of:")
	overlap, shouldMatched := 0, 0
	sum := 0.0
	fail := false
	for i, cw := range w.weights {
		c := w.query.clauses[i]
		sc, err := cw.Scorer(leaf, leaf.Segment.LiveDocs())
		if err != nil {
			return nil, err
		}
		if sc == nil {
			if c.required() {
				sumExpl.AddDetail(search.NoMatch("no match on required clause (" + c.Query.String() + ")"))
				fail = true
			}
			continue
		}
		e, err := cw.Explain(leaf, doc)
		if err != nil {
			return nil, err
		}
		switch {
		case e.Match && !c.prohibited():
			sumExpl.AddDetail(e)
			sum += e.Value
			overlap++
			if c.Occur == Should {
				shouldMatched++
			}
		case e.Match:
			sumExpl.AddDetail(search.NoMatch("match on prohibited clause ("+c.Query.String()+")", e))
			fail = true
		case c.required():
			sumExpl.AddDetail(search.NoMatch("no match on required clause ("+c.Query.String()+")", e))
			fail = true
		}
	}
	if fail {
		return search.NoMatch("Failure to meet condition(s) of required/prohibited clause(s)", sumExpl.Details...), nil
	}
	if shouldMatched < w.query.minShouldMatch {
		return search.NoMatch("Failure to match minimum number of optional clauses: "+strconv.Itoa(w.query.minShouldMatch),
			sumExpl.Details...), nil
	}
	if overlap == 0 {
		return search.NoMatch("no matching clause", sumExpl.Details...), nil
	}
	sumExpl.Value = sum
	factor := w.coord(overlap, w.maxCoord)
	if factor == 1 {
		return sumExpl, nil
	}
	return search.Matched(sum*factor, "product of:",
		sumExpl,
		search.Factor(factor, fmt.Sprintf("coord(%d/%d)", overlap, w.maxCoord)),
	), nil
}

// booleanScorer applies the coord factor to the combined clause scorer.
type booleanScorer struct {
	inner  search.Scorer
	coords []float64
}

func (s *booleanScorer) DocID() int             { return s.inner.DocID() }
func (s *booleanScorer) NextDoc() int           { return s.inner.NextDoc() }
func (s *booleanScorer) Advance(target int) int { return s.inner.Advance(target) }
func (s *booleanScorer) Cost() int64            { return s.inner.Cost() }
func (s *booleanScorer) Freq() int              { return matchedOf(s.inner) }

func (s *booleanScorer) Score() float64 {
	return s.inner.Score() * s.coords[matchedOf(s.inner)]
}
