package query

import (
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
)

// MultiTermQueryWrapperFilter keeps the docs of every term a
// MultiTermQuery expands to, without building one clause per term.
type MultiTermQueryWrapperFilter struct {
	query MultiTermQuery
}

func NewMultiTermQueryWrapperFilter(q MultiTermQuery) *MultiTermQueryWrapperFilter {
	return &MultiTermQueryWrapperFilter{query: q}
}

func (f *MultiTermQueryWrapperFilter) Query() MultiTermQuery { return f.query }
func (f *MultiTermQueryWrapperFilter) Field() string         { return f.query.Field() }

func (f *MultiTermQueryWrapperFilter) DocIdSet(leaf *index.LeafContext, acceptDocs index.Bits) (search.DocIdSet, error) {
	terms := leaf.Segment.Terms(f.query.Field())
	if terms == nil {
		return search.EmptyDocIdSet, nil
	}
	m := f.query.TermMatcher(terms)
	if m == nil {
		return search.EmptyDocIdSet, nil
	}
	te := NewFilteredTermsEnum(terms.Iterator(), m)
	if te.Next() == nil {
		return search.EmptyDocIdSet, nil
	}
	set := search.NewBitDocIdSet(leaf.Segment.MaxDoc())
	for t := te.Term(); t != nil; t = te.Next() {
		set.Or(te.Postings(acceptDocs))
	}
	return set, nil
}

func (f *MultiTermQueryWrapperFilter) String() string { return f.query.String() }

// NewTermRangeFilter keeps docs with a term of field inside the range. A
// nil bound leaves that end open.
func NewTermRangeFilter(field string, lower, upper []byte, includeLower, includeUpper bool) *MultiTermQueryWrapperFilter {
	return NewMultiTermQueryWrapperFilter(NewTermRangeQuery(field, lower, upper, includeLower, includeUpper))
}

// NewNumericRangeFilter keeps the docs matched by q.
func NewNumericRangeFilter(q *NumericRangeQuery) *MultiTermQueryWrapperFilter {
	return NewMultiTermQueryWrapperFilter(q)
}

// NewPrefixFilter keeps docs with a term of field starting with prefix.
func NewPrefixFilter(field, prefix string) *MultiTermQueryWrapperFilter {
	return NewMultiTermQueryWrapperFilter(NewPrefixQuery(index.NewTerm(field, prefix)))
}
