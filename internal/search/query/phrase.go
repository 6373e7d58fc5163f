package query

import (
	"container/heap"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

// PhraseQuery matches docs containing its terms at the given relative
// positions. With a slop greater than zero the terms may be moved by up to
// slop positions in total, and closer matches score higher.
type PhraseQuery struct {
	search.Boosted
	field     string
	terms     []index.Term
	positions []int
	slop      int
}

func NewPhraseQuery() *PhraseQuery {
	return &PhraseQuery{}
}

// Add appends t one position after the last term.
func (q *PhraseQuery) Add(t index.Term) error {
	pos := 0
	if n := len(q.positions); n > 0 {
		pos = q.positions[n-1] + 1
	}
	return q.AddAt(t, pos)
}

// AddAt places t at position. All terms must share one field.
func (q *PhraseQuery) AddAt(t index.Term, position int) error {
	if position < 0 {
		return apperrors.Invalidf("phrase position %d is negative", position)
	}
	if len(q.terms) == 0 {
		q.field = t.Field
	} else if t.Field != q.field {
		return apperrors.Invalidf("all phrase terms must be in the same field %q, got %q", q.field, t.Field)
	}
	q.terms = append(q.terms, t)
	q.positions = append(q.positions, position)
	return nil
}

func (q *PhraseQuery) SetSlop(slop int) error {
	if slop < 0 {
		return apperrors.Invalidf("slop must be non-negative, got %d", slop)
	}
	q.slop = slop
	return nil
}

func (q *PhraseQuery) Slop() int           { return q.slop }
func (q *PhraseQuery) Terms() []index.Term { return q.terms }
func (q *PhraseQuery) Positions() []int    { return q.positions }

func (q *PhraseQuery) Clone() search.Query {
	c := *q
	c.terms = slices.Clone(q.terms)
	c.positions = slices.Clone(q.positions)
	return &c
}

func (q *PhraseQuery) Rewrite(*search.IndexSearcher) (search.Query, error) {
	switch len(q.terms) {
	case 0:
		return NewBooleanQuery(false), nil
	case 1:
		tq := NewTermQuery(q.terms[0])
		tq.SetBoost(q.Boost())
		return tq, nil
	}
	return q, nil
}

func (q *PhraseQuery) ExtractTerms(terms map[index.Term]struct{}) {
	for _, t := range q.terms {
		terms[t] = struct{}{}
	}
}

func (q *PhraseQuery) String() string {
	byPos := make([][]string, 0)
	for i, t := range q.terms {
		p := q.positions[i]
		for len(byPos) <= p {
			byPos = append(byPos, nil)
		}
		byPos[p] = append(byPos[p], t.Text)
	}
	return phraseString(q.field, byPos, q.slop) + search.BoostString(q.Boost())
}

func phraseString(field string, byPos [][]string, slop int) string {
	var b strings.Builder
	if field != "" {
		b.WriteString(field + ":")
	}
	b.WriteByte('"')
	for i, texts := range byPos {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch len(texts) {
		case 0:
			b.WriteByte('?')
		case 1:
			b.WriteString(texts[0])
		default:
			b.WriteString("(" + strings.Join(texts, " ") + ")")
		}
	}
	b.WriteByte('"')
	if slop != 0 {
		b.WriteString("~" + strconv.Itoa(slop))
	}
	return b.String()
}

func (q *PhraseQuery) CreateWeight(s *search.IndexSearcher) (search.Weight, error) {
	return &phraseWeight{
		query: q,
		sw:    newSimWeight(s, q.field, q.Boost(), q.terms...),
		slop:  q.slop,
		postings: func(seg *index.Segment, accept index.Bits) []positionsEnum {
			out := make([]positionsEnum, len(q.terms))
			for i, t := range q.terms {
				pe := seg.Postings(t, accept)
				if pe == nil {
					return nil
				}
				out[i] = pe
			}
			return out
		},
		offsets: q.positions,
	}, nil
}

// positionsEnum iterates docs together with the term positions in each.
type positionsEnum interface {
	search.DocIdSetIterator
	Freq() int
	Positions() []int32
}

// phraseWeight is shared by PhraseQuery and MultiPhraseQuery; postings
// returns one enum per phrase slot, or nil when a slot cannot match.
type phraseWeight struct {
	query    search.Query
	sw       *simWeight
	slop     int
	postings func(seg *index.Segment, accept index.Bits) []positionsEnum
	offsets  []int
}

func (w *phraseWeight) Query() search.Query            { return w.query }
func (w *phraseWeight) ValueForNormalization() float64 { return w.sw.valueForNormalization() }
func (w *phraseWeight) Normalize(norm, topLevelBoost float64) {
	w.sw.normalize(norm, topLevelBoost)
}

func (w *phraseWeight) Scorer(leaf *index.LeafContext, acceptDocs index.Bits) (search.Scorer, error) {
	s := w.phraseScorer(leaf, acceptDocs)
	if s == nil {
		return nil, nil
	}
	return s, nil
}

func (w *phraseWeight) phraseScorer(leaf *index.LeafContext, acceptDocs index.Bits) *phraseScorer {
	enums := w.postings(leaf.Segment, acceptDocs)
	if enums == nil {
		return nil
	}
	s := &phraseScorer{sw: w.sw, seg: leaf.Segment, slop: w.slop, doc: -1}
	its := make([]search.DocIdSetIterator, len(enums))
	for i, pe := range enums {
		s.pps = append(s.pps, &phrasePositions{enum: pe, offset: w.offsets[i], ord: i})
		its[i] = pe
	}
	s.conj = newConjunction(its)
	return s
}

func (w *phraseWeight) Explain(leaf *index.LeafContext, doc int) (*search.Explanation, error) {
	s := w.phraseScorer(leaf, nil)
	if s == nil || s.Advance(doc) != doc {
		return search.NoMatch("no matching phrase"), nil
	}
	desc := "weight(" + w.query.String() + " in " + itoa(doc) + ") [" + similarityName(w.sw.sim) + "]"
	return w.sw.explain(leaf.Segment, doc, s.freq, desc), nil
}

// phrasePositions walks the positions of one phrase slot within the
// current doc, shifted by the slot's offset.
type phrasePositions struct {
	enum      positionsEnum
	offset    int
	ord       int
	positions []int32
	idx       int
	pos       int
}

func (pp *phrasePositions) first() bool {
	pp.positions = pp.enum.Positions()
	pp.idx = -1
	return pp.next()
}

func (pp *phrasePositions) next() bool {
	pp.idx++
	if pp.idx >= len(pp.positions) {
		return false
	}
	pp.pos = int(pp.positions[pp.idx]) - pp.offset
	return true
}

type positionsHeap []*phrasePositions

func (h positionsHeap) Len() int { return len(h) }
func (h positionsHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.pos != b.pos {
		return a.pos < b.pos
	}
	if a.offset != b.offset {
		return a.offset < b.offset
	}
	return a.ord < b.ord
}
func (h positionsHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *positionsHeap) Push(x any)   { *h = append(*h, x.(*phrasePositions)) }
func (h *positionsHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// phraseScorer matches docs where the phrase occurs at least once. freq
// is the number of exact occurrences, or the sum of sloppy weights of
// every match window within the slop.
type phraseScorer struct {
	conj    *conjunction
	pps     []*phrasePositions
	sw      *simWeight
	seg     *index.Segment
	slop    int
	doc     int
	freq    float64
	matches int
}

func (s *phraseScorer) DocID() int  { return s.doc }
func (s *phraseScorer) Cost() int64 { return s.conj.Cost() }
func (s *phraseScorer) Freq() int   { return s.matches }

func (s *phraseScorer) Score() float64 {
	return s.sw.score(s.seg, s.doc, s.freq)
}

func (s *phraseScorer) NextDoc() int {
	return s.settle(s.conj.NextDoc())
}

func (s *phraseScorer) Advance(target int) int {
	return s.settle(s.conj.Advance(target))
}

func (s *phraseScorer) settle(doc int) int {
	for doc != search.NoMoreDocs {
		if s.slop == 0 {
			s.exactFreq()
		} else {
			s.sloppyFreq()
		}
		if s.matches > 0 {
			break
		}
		doc = s.conj.NextDoc()
	}
	s.doc = doc
	return doc
}

// exactFreq counts the start positions shared by every slot.
func (s *phraseScorer) exactFreq() {
	var starts []int
	for i, pp := range s.pps {
		positions := pp.enum.Positions()
		if i == 0 {
			starts = make([]int, 0, len(positions))
			for _, p := range positions {
				starts = append(starts, int(p)-pp.offset)
			}
			continue
		}
		kept := starts[:0]
		j := 0
		for _, start := range starts {
			for j < len(positions) && int(positions[j])-pp.offset < start {
				j++
			}
			if j < len(positions) && int(positions[j])-pp.offset == start {
				kept = append(kept, start)
			}
		}
		starts = kept
		if len(starts) == 0 {
			break
		}
	}
	s.matches = len(starts)
	s.freq = float64(s.matches)
}

// sloppyFreq slides a window over the slot positions, always advancing
// the slot that is furthest behind, and scores every minimal window whose
// length is within the slop.
func (s *phraseScorer) sloppyFreq() {
	s.freq, s.matches = 0, 0
	h := make(positionsHeap, 0, len(s.pps))
	end := math.MinInt
	for _, pp := range s.pps {
		if !pp.first() {
			return
		}
		end = max(end, pp.pos)
		h = append(h, pp)
	}
	heap.Init(&h)
	pp := heap.Pop(&h).(*phrasePositions)
	if len(h) == 0 {
		for ok := true; ok; ok = pp.next() {
			s.scoreWindow(0)
		}
		return
	}
	matchLength := end - pp.pos
	next := h[0].pos
	for pp.next() {
		end = max(end, pp.pos)
		if pp.pos > next {
			s.scoreWindow(matchLength)
			heap.Push(&h, pp)
			pp = heap.Pop(&h).(*phrasePositions)
			next = h[0].pos
			matchLength = end - pp.pos
		} else if l := end - pp.pos; l < matchLength {
			matchLength = l
		}
	}
	s.scoreWindow(matchLength)
}

func (s *phraseScorer) scoreWindow(matchLength int) {
	if matchLength <= s.slop {
		s.freq += s.sw.sim.SloppyFreq(matchLength)
		s.matches++
	}
}
