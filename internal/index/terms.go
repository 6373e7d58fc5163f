package index

import (
	"bytes"
	"sort"
)

// fieldData is the inverted index of one field in one segment. Terms are
// sorted by their bytes and Lists is parallel to Terms.
type fieldData struct {
	Terms     []string       `json:"-"`
	Lists     []*postingList `json:"-"`
	Lengths   []int32        `json:"lengths,omitempty"`
	OmitNorms bool           `json:"omitNorms"`
	DocCount  int            `json:"docCount"`
	SumTTF    int64          `json:"sumTotalTermFreq"`
}

func (fd *fieldData) find(term string) (int, bool) {
	i := sort.SearchStrings(fd.Terms, term)
	return i, i < len(fd.Terms) && fd.Terms[i] == term
}

// Terms is the term dictionary of one field in one segment.
type Terms struct {
	field string
	data  *fieldData
}

func (t *Terms) Field() string { return t.field }

// Size is the number of unique terms.
func (t *Terms) Size() int { return len(t.data.Terms) }

// DocCount is the number of docs with at least one term in the field.
func (t *Terms) DocCount() int { return t.data.DocCount }

func (t *Terms) SumTotalTermFreq() int64 { return t.data.SumTTF }

func (t *Terms) Iterator() *TermsEnum {
	return &TermsEnum{data: t.data, ord: -1}
}

// SeekStatus is the outcome of TermsEnum.SeekCeil.
type SeekStatus int

const (
	SeekFound SeekStatus = iota
	SeekNotFound
	SeekEnd
)

// TermsEnum walks a field's terms in ascending byte order.
type TermsEnum struct {
	data *fieldData
	ord  int
}

// Next advances to the next term. It returns nil once exhausted.
func (e *TermsEnum) Next() []byte {
	if e.ord < len(e.data.Terms) {
		e.ord++
	}
	if e.ord >= len(e.data.Terms) {
		return nil
	}
	return []byte(e.data.Terms[e.ord])
}

// SeekCeil positions on the smallest term >= target.
func (e *TermsEnum) SeekCeil(target []byte) SeekStatus {
	i, found := e.data.find(string(target))
	e.ord = i
	switch {
	case found:
		return SeekFound
	case i >= len(e.data.Terms):
		return SeekEnd
	default:
		return SeekNotFound
	}
}

// SeekExact positions on target if it exists.
func (e *TermsEnum) SeekExact(target []byte) bool {
	i, found := e.data.find(string(target))
	if found {
		e.ord = i
	}
	return found
}

// Term returns the current term bytes.
func (e *TermsEnum) Term() []byte {
	if e.ord < 0 || e.ord >= len(e.data.Terms) {
		return nil
	}
	return []byte(e.data.Terms[e.ord])
}

// Compare compares the current term to other.
func (e *TermsEnum) Compare(other []byte) int {
	return bytes.Compare(e.Term(), other)
}

func (e *TermsEnum) DocFreq() int {
	return len(e.data.Lists[e.ord].Docs)
}

func (e *TermsEnum) TotalTermFreq() int64 {
	return e.data.Lists[e.ord].totalTermFreq()
}

// Postings returns an enum over the current term's docs, limited to accept
// when it is non-nil.
func (e *TermsEnum) Postings(accept Bits) *PostingsEnum {
	return newPostingsEnum(e.data.Lists[e.ord], accept)
}
