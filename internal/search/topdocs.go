package search

import (
	"cmp"
	"container/heap"
)

// ScoreDoc is one hit. Doc is reader-global. Fields holds the sort values
// when the search was sorted by fields.
type ScoreDoc struct {
	Doc    int     `json:"doc"`
	Score  float64 `json:"score"`
	Fields []any   `json:"fields,omitempty"`
}

// TopDocs is the result of a search.
type TopDocs struct {
	TotalHits int        `json:"total_hits"`
	ScoreDocs []ScoreDoc `json:"score_docs"`
	// MaxScore is 0 when nothing matched.
	MaxScore float64 `json:"max_score"`
}

// docOrder ranks two hits: negative when a belongs before b.
type docOrder func(a, b *ScoreDoc) int

// byRelevance orders by descending score, then ascending doc.
func byRelevance(a, b *ScoreDoc) int {
	if a.Score != b.Score {
		if a.Score > b.Score {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.Doc, b.Doc)
}

// topHeap keeps the best n hits with the worst one on top.
type topHeap struct {
	docs  []ScoreDoc
	order docOrder
}

func (h *topHeap) Len() int           { return len(h.docs) }
func (h *topHeap) Less(i, j int) bool { return h.order(&h.docs[i], &h.docs[j]) > 0 }
func (h *topHeap) Swap(i, j int)      { h.docs[i], h.docs[j] = h.docs[j], h.docs[i] }
func (h *topHeap) Push(x any)         { h.docs = append(h.docs, x.(ScoreDoc)) }

func (h *topHeap) Pop() any {
	old := h.docs
	n := len(old)
	item := old[n-1]
	h.docs = old[:n-1]
	return item
}

// offer inserts d if it ranks among the best n.
func (h *topHeap) offer(d ScoreDoc, n int) {
	if len(h.docs) < n {
		heap.Push(h, d)
		return
	}
	if h.order(&d, &h.docs[0]) < 0 {
		h.docs[0] = d
		heap.Fix(h, 0)
	}
}

// competitive reports whether a hit ranking like d could still enter.
func (h *topHeap) competitive(d *ScoreDoc, n int) bool {
	return len(h.docs) < n || h.order(d, &h.docs[0]) < 0
}

// drain returns the kept hits best first.
func (h *topHeap) drain() []ScoreDoc {
	out := make([]ScoreDoc, len(h.docs))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(ScoreDoc)
	}
	return out
}

type mergeCursor struct {
	list []ScoreDoc
	pos  int
}

type mergeHeap struct {
	cursors []*mergeCursor
	order   docOrder
}

func (h *mergeHeap) Len() int { return len(h.cursors) }
func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.cursors[i], h.cursors[j]
	return h.order(&a.list[a.pos], &b.list[b.pos]) < 0
}
func (h *mergeHeap) Swap(i, j int) { h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i] }
func (h *mergeHeap) Push(x any)    { h.cursors = append(h.cursors, x.(*mergeCursor)) }
func (h *mergeHeap) Pop() any {
	old := h.cursors
	n := len(old)
	item := old[n-1]
	h.cursors = old[:n-1]
	return item
}

// mergeTopDocs k-way merges per-segment results that are each already in
// order, keeping the first n. Equal hits keep segment order because doc
// ids break every tie.
func mergeTopDocs(parts []*TopDocs, n int, order docOrder) *TopDocs {
	out := &TopDocs{}
	h := &mergeHeap{order: order}
	scored := false
	for _, p := range parts {
		if p == nil {
			continue
		}
		out.TotalHits += p.TotalHits
		if p.TotalHits > 0 && (!scored || p.MaxScore > out.MaxScore) {
			out.MaxScore = p.MaxScore
			scored = true
		}
		if len(p.ScoreDocs) > 0 {
			h.cursors = append(h.cursors, &mergeCursor{list: p.ScoreDocs})
		}
	}
	heap.Init(h)
	out.ScoreDocs = make([]ScoreDoc, 0, min(n, out.TotalHits))
	for h.Len() > 0 && len(out.ScoreDocs) < n {
		c := h.cursors[0]
		out.ScoreDocs = append(out.ScoreDocs, c.list[c.pos])
		c.pos++
		if c.pos == len(c.list) {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}
	return out
}
