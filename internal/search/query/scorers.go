package query

import (
	"cmp"
	"container/heap"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
)

// clauseCounter is implemented by the internal scorers that combine
// boolean clauses; it reports how many clause scorers match the current
// doc. Any other scorer counts as one clause.
type clauseCounter interface {
	search.Scorer
	matched() int
}

func matchedOf(s search.Scorer) int {
	if c, ok := s.(clauseCounter); ok {
		return c.matched()
	}
	return 1
}

// scorerHeap orders sub-scorers by current doc.
type scorerHeap []search.Scorer

func (h scorerHeap) Len() int           { return len(h) }
func (h scorerHeap) Less(i, j int) bool { return h[i].DocID() < h[j].DocID() }
func (h scorerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *scorerHeap) Push(x any)        { *h = append(*h, x.(search.Scorer)) }

func (h *scorerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// disjunctionScorer matches docs on which at least minMatch sub-scorers
// match. The score is the sum of the matching sub-scores.
type disjunctionScorer struct {
	subs     scorerHeap
	minMatch int
	doc      int
	current  []search.Scorer
	cost     int64
}

func newDisjunctionScorer(subs []search.Scorer, minMatch int) *disjunctionScorer {
	d := &disjunctionScorer{subs: slices.Clone(subs), minMatch: max(1, minMatch), doc: -1}
	for _, s := range subs {
		d.cost += s.Cost()
	}
	heap.Init(&d.subs)
	return d
}

func (d *disjunctionScorer) DocID() int  { return d.doc }
func (d *disjunctionScorer) Cost() int64 { return d.cost }

func (d *disjunctionScorer) NextDoc() int {
	if d.doc == search.NoMoreDocs {
		return d.doc
	}
	d.stepPast(d.doc)
	return d.settle()
}

func (d *disjunctionScorer) Advance(target int) int {
	for len(d.subs) > 0 && d.subs[0].DocID() < target {
		if d.subs[0].Advance(target) == search.NoMoreDocs {
			heap.Pop(&d.subs)
		} else {
			heap.Fix(&d.subs, 0)
		}
	}
	return d.settle()
}

// stepPast moves every sub-scorer positioned on doc to its next doc.
func (d *disjunctionScorer) stepPast(doc int) {
	for len(d.subs) > 0 && d.subs[0].DocID() == doc {
		if d.subs[0].NextDoc() == search.NoMoreDocs {
			heap.Pop(&d.subs)
		} else {
			heap.Fix(&d.subs, 0)
		}
	}
}

// settle finds the first doc at or after the heap top matched by enough
// sub-scorers.
func (d *disjunctionScorer) settle() int {
	for len(d.subs) > 0 {
		doc := d.subs[0].DocID()
		d.current = d.current[:0]
		d.collect(0, doc)
		if len(d.current) >= d.minMatch {
			d.doc = doc
			return doc
		}
		d.stepPast(doc)
	}
	d.current = d.current[:0]
	d.doc = search.NoMoreDocs
	return d.doc
}

func (d *disjunctionScorer) collect(i, doc int) {
	if i >= len(d.subs) || d.subs[i].DocID() != doc {
		return
	}
	d.current = append(d.current, d.subs[i])
	d.collect(2*i+1, doc)
	d.collect(2*i+2, doc)
}

func (d *disjunctionScorer) Score() float64 {
	sum := 0.0
	for _, s := range d.current {
		sum += s.Score()
	}
	return sum
}

func (d *disjunctionScorer) Freq() int { return len(d.current) }

func (d *disjunctionScorer) matched() int {
	n := 0
	for _, s := range d.current {
		n += matchedOf(s)
	}
	return n
}

// conjunction intersects iterators, leapfrogging from the cheapest one.
type conjunction struct {
	its []search.DocIdSetIterator
	doc int
}

func newConjunction(its []search.DocIdSetIterator) *conjunction {
	sorted := slices.Clone(its)
	slices.SortStableFunc(sorted, func(a, b search.DocIdSetIterator) int {
		return cmp.Compare(a.Cost(), b.Cost())
	})
	return &conjunction{its: sorted, doc: -1}
}

func (c *conjunction) DocID() int  { return c.doc }
func (c *conjunction) Cost() int64 { return c.its[0].Cost() }

func (c *conjunction) NextDoc() int {
	return c.align(c.its[0].NextDoc())
}

func (c *conjunction) Advance(target int) int {
	return c.align(c.its[0].Advance(target))
}

// align advances the followers to the lead's doc until all agree.
func (c *conjunction) align(doc int) int {
	lead := c.its[0]
outer:
	for doc != search.NoMoreDocs {
		for _, it := range c.its[1:] {
			other := it.DocID()
			if other < doc {
				other = it.Advance(doc)
			}
			if other > doc {
				doc = lead.Advance(other)
				continue outer
			}
		}
		break
	}
	c.doc = doc
	return doc
}

// conjunctionScorer matches docs on which every sub-scorer matches and
// sums their scores.
type conjunctionScorer struct {
	*conjunction
	subs []search.Scorer
}

func newConjunctionScorer(subs []search.Scorer) *conjunctionScorer {
	its := make([]search.DocIdSetIterator, len(subs))
	for i, s := range subs {
		its[i] = s
	}
	return &conjunctionScorer{conjunction: newConjunction(its), subs: subs}
}

func (c *conjunctionScorer) Score() float64 {
	sum := 0.0
	for _, s := range c.subs {
		sum += s.Score()
	}
	return sum
}

func (c *conjunctionScorer) Freq() int { return len(c.subs) }

func (c *conjunctionScorer) matched() int {
	n := 0
	for _, s := range c.subs {
		n += matchedOf(s)
	}
	return n
}

// reqExclScorer matches the docs of req not matched by excl.
type reqExclScorer struct {
	req  search.Scorer
	excl search.DocIdSetIterator
	doc  int
}

func newReqExclScorer(req search.Scorer, excl search.DocIdSetIterator) *reqExclScorer {
	return &reqExclScorer{req: req, excl: excl, doc: -1}
}

func (r *reqExclScorer) DocID() int  { return r.doc }
func (r *reqExclScorer) Cost() int64 { return r.req.Cost() }

func (r *reqExclScorer) NextDoc() int {
	return r.skipExcluded(r.req.NextDoc())
}

func (r *reqExclScorer) Advance(target int) int {
	return r.skipExcluded(r.req.Advance(target))
}

func (r *reqExclScorer) skipExcluded(doc int) int {
	for doc != search.NoMoreDocs {
		exclDoc := r.excl.DocID()
		if exclDoc < doc {
			exclDoc = r.excl.Advance(doc)
		}
		if exclDoc != doc {
			break
		}
		doc = r.req.NextDoc()
	}
	r.doc = doc
	return doc
}

func (r *reqExclScorer) Score() float64 { return r.req.Score() }
func (r *reqExclScorer) Freq() int      { return r.req.Freq() }
func (r *reqExclScorer) matched() int   { return matchedOf(r.req) }

// reqOptScorer matches the docs of req and adds the score of opt where it
// also matches.
type reqOptScorer struct {
	req search.Scorer
	opt search.Scorer
}

func (r *reqOptScorer) DocID() int             { return r.req.DocID() }
func (r *reqOptScorer) NextDoc() int           { return r.req.NextDoc() }
func (r *reqOptScorer) Advance(target int) int { return r.req.Advance(target) }
func (r *reqOptScorer) Cost() int64            { return r.req.Cost() }

// optMatches positions opt on the current doc if it can be.
func (r *reqOptScorer) optMatches() bool {
	doc := r.req.DocID()
	optDoc := r.opt.DocID()
	if optDoc < doc {
		optDoc = r.opt.Advance(doc)
	}
	return optDoc == doc
}

func (r *reqOptScorer) Score() float64 {
	score := r.req.Score()
	if r.optMatches() {
		score += r.opt.Score()
	}
	return score
}

func (r *reqOptScorer) Freq() int {
	if r.optMatches() {
		return r.req.Freq() + r.opt.Freq()
	}
	return r.req.Freq()
}

func (r *reqOptScorer) matched() int {
	n := matchedOf(r.req)
	if r.optMatches() {
		n += matchedOf(r.opt)
	}
	return n
}
