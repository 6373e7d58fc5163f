package query

import (
	"slices"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

// MultiPhraseQuery is a phrase in which each position may be satisfied by
// any of several terms.
type MultiPhraseQuery struct {
	search.Boosted
	field      string
	termArrays [][]index.Term
	positions  []int
	slop       int
}

func NewMultiPhraseQuery() *MultiPhraseQuery {
	return &MultiPhraseQuery{}
}

// Add appends a slot one position after the last one.
func (q *MultiPhraseQuery) Add(terms ...index.Term) error {
	pos := 0
	if n := len(q.positions); n > 0 {
		pos = q.positions[n-1] + 1
	}
	return q.AddAt(terms, pos)
}

// AddAt places a slot matched by any of terms at position.
func (q *MultiPhraseQuery) AddAt(terms []index.Term, position int) error {
	if len(terms) == 0 {
		return apperrors.Invalidf("multi-phrase slot needs at least one term")
	}
	if position < 0 {
		return apperrors.Invalidf("phrase position %d is negative", position)
	}
	field := q.field
	if len(q.termArrays) == 0 {
		field = terms[0].Field
	}
	for _, t := range terms {
		if t.Field != field {
			return apperrors.Invalidf("all phrase terms must be in the same field %q, got %q", field, t.Field)
		}
	}
	q.field = field
	q.termArrays = append(q.termArrays, slices.Clone(terms))
	q.positions = append(q.positions, position)
	return nil
}

func (q *MultiPhraseQuery) SetSlop(slop int) error {
	if slop < 0 {
		return apperrors.Invalidf("slop must be non-negative, got %d", slop)
	}
	q.slop = slop
	return nil
}

func (q *MultiPhraseQuery) Slop() int                  { return q.slop }
func (q *MultiPhraseQuery) TermArrays() [][]index.Term { return q.termArrays }
func (q *MultiPhraseQuery) Positions() []int           { return q.positions }

func (q *MultiPhraseQuery) Clone() search.Query {
	c := *q
	c.termArrays = slices.Clone(q.termArrays)
	c.positions = slices.Clone(q.positions)
	return &c
}

// Rewrite turns a single slot into a coord-free disjunction of its terms.
func (q *MultiPhraseQuery) Rewrite(*search.IndexSearcher) (search.Query, error) {
	switch len(q.termArrays) {
	case 0:
		return NewBooleanQuery(false), nil
	case 1:
		bq := NewBooleanQuery(true)
		for _, t := range q.termArrays[0] {
			bq.Add(NewTermQuery(t), Should)
		}
		bq.SetBoost(q.Boost())
		return bq, nil
	}
	return q, nil
}

func (q *MultiPhraseQuery) ExtractTerms(terms map[index.Term]struct{}) {
	for _, arr := range q.termArrays {
		for _, t := range arr {
			terms[t] = struct{}{}
		}
	}
}

func (q *MultiPhraseQuery) String() string {
	var byPos [][]string
	for i, arr := range q.termArrays {
		p := q.positions[i]
		for len(byPos) <= p {
			byPos = append(byPos, nil)
		}
		for _, t := range arr {
			byPos[p] = append(byPos[p], t.Text)
		}
	}
	return phraseString(q.field, byPos, q.slop) + search.BoostString(q.Boost())
}

func (q *MultiPhraseQuery) CreateWeight(s *search.IndexSearcher) (search.Weight, error) {
	var all []index.Term
	for _, arr := range q.termArrays {
		all = append(all, arr...)
	}
	return &phraseWeight{
		query: q,
		sw:    newSimWeight(s, q.field, q.Boost(), all...),
		slop:  q.slop,
		postings: func(seg *index.Segment, accept index.Bits) []positionsEnum {
			out := make([]positionsEnum, len(q.termArrays))
			for i, arr := range q.termArrays {
				var subs []*index.PostingsEnum
				for _, t := range arr {
					if pe := seg.Postings(t, accept); pe != nil {
						subs = append(subs, pe)
					}
				}
				switch len(subs) {
				case 0:
					return nil
				case 1:
					out[i] = subs[0]
				default:
					out[i] = newUnionPositions(subs)
				}
			}
			return out
		},
		offsets: q.positions,
	}, nil
}

// unionPositions merges several postings into one enum whose positions are
// the sorted union of the positions of the postings on the current doc.
type unionPositions struct {
	subs      []*index.PostingsEnum
	doc       int
	positions []int32
	cost      int64
}

func newUnionPositions(subs []*index.PostingsEnum) *unionPositions {
	u := &unionPositions{subs: subs, doc: -1}
	for _, pe := range subs {
		u.cost += pe.Cost()
	}
	return u
}

func (u *unionPositions) DocID() int         { return u.doc }
func (u *unionPositions) Cost() int64        { return u.cost }
func (u *unionPositions) Freq() int          { return len(u.positions) }
func (u *unionPositions) Positions() []int32 { return u.positions }

func (u *unionPositions) NextDoc() int {
	if u.doc == search.NoMoreDocs {
		return u.doc
	}
	return u.Advance(u.doc + 1)
}

func (u *unionPositions) Advance(target int) int {
	doc := search.NoMoreDocs
	for _, pe := range u.subs {
		d := pe.DocID()
		if d < target {
			d = pe.Advance(target)
		}
		doc = min(doc, d)
	}
	u.doc = doc
	u.positions = u.positions[:0]
	if doc == search.NoMoreDocs {
		return doc
	}
	for _, pe := range u.subs {
		if pe.DocID() == doc {
			u.positions = append(u.positions, pe.Positions()...)
		}
	}
	slices.Sort(u.positions)
	return doc
}
