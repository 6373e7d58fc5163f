package index

import "sort"

// postingList is the immutable doc/freq/position list of one term in one
// segment. Docs are ascending.
type postingList struct {
	Docs      []int32   `json:"d"`
	Freqs     []int32   `json:"f"`
	Positions [][]int32 `json:"p,omitempty"`
}

func (p *postingList) totalTermFreq() int64 {
	var sum int64
	for _, f := range p.Freqs {
		sum += int64(f)
	}
	return sum
}

// PostingsEnum iterates the docs of one term, skipping docs rejected by its
// accept docs.
type PostingsEnum struct {
	list   *postingList
	accept Bits
	idx    int
	doc    int
}

func newPostingsEnum(list *postingList, accept Bits) *PostingsEnum {
	return &PostingsEnum{list: list, accept: accept, idx: -1, doc: -1}
}

func (e *PostingsEnum) DocID() int { return e.doc }

func (e *PostingsEnum) NextDoc() int {
	return e.scanFrom(e.idx + 1)
}

// Advance moves to the first accepted doc >= target.
func (e *PostingsEnum) Advance(target int) int {
	if target >= NoMoreDocs {
		e.idx = len(e.list.Docs)
		e.doc = NoMoreDocs
		return e.doc
	}
	start := e.idx + 1
	docs := e.list.Docs[start:]
	i := sort.Search(len(docs), func(i int) bool { return int(docs[i]) >= target })
	return e.scanFrom(start + i)
}

func (e *PostingsEnum) scanFrom(i int) int {
	for ; i < len(e.list.Docs); i++ {
		doc := int(e.list.Docs[i])
		if e.accept == nil || e.accept.Get(doc) {
			e.idx = i
			e.doc = doc
			return doc
		}
	}
	e.idx = len(e.list.Docs)
	e.doc = NoMoreDocs
	return e.doc
}

// Freq is the within-doc frequency of the current doc.
func (e *PostingsEnum) Freq() int {
	return int(e.list.Freqs[e.idx])
}

// Positions returns the ascending positions of the current doc, or nil for
// fields indexed without positions.
func (e *PostingsEnum) Positions() []int32 {
	if e.list.Positions == nil {
		return nil
	}
	return e.list.Positions[e.idx]
}

func (e *PostingsEnum) Cost() int64 {
	return int64(len(e.list.Docs))
}
