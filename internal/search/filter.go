package search

import (
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
)

// Filter restricts a search to a per-segment set of docs without affecting
// scores.
type Filter interface {
	// DocIdSet returns the docs of leaf passing the filter. Docs rejected by
	// acceptDocs must not be returned; nil accepts everything. A nil result
	// means no docs.
	DocIdSet(leaf *index.LeafContext, acceptDocs index.Bits) (DocIdSet, error)
	String() string
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(leaf *index.LeafContext, acceptDocs index.Bits) (DocIdSet, error)

func (f FilterFunc) DocIdSet(leaf *index.LeafContext, acceptDocs index.Bits) (DocIdSet, error) {
	return f(leaf, acceptDocs)
}

func (f FilterFunc) String() string { return "FilterFunc" }

// QueryWrapperFilter keeps the docs matched by a query.
type QueryWrapperFilter struct {
	query Query
}

func NewQueryWrapperFilter(q Query) *QueryWrapperFilter {
	return &QueryWrapperFilter{query: q}
}

func (f *QueryWrapperFilter) Query() Query { return f.query }

func (f *QueryWrapperFilter) DocIdSet(leaf *index.LeafContext, acceptDocs index.Bits) (DocIdSet, error) {
	s := NewIndexSearcher(leaf.Reader, DefaultConfig())
	w, err := s.CreateNormalizedWeight(f.query)
	if err != nil {
		return nil, fmt.Errorf("creating weight for %s: %w", f.query, err)
	}
	sc, err := w.Scorer(leaf, acceptDocs)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, nil
	}
	return &scorerDocIdSet{weight: w, leaf: leaf, accept: acceptDocs, first: sc}, nil
}

func (f *QueryWrapperFilter) String() string {
	return "QueryWrapperFilter(" + f.query.String() + ")"
}

// scorerDocIdSet exposes a weight's matches as a lazily iterated set.
type scorerDocIdSet struct {
	weight Weight
	leaf   *index.LeafContext
	accept index.Bits

	mu    sync.Mutex
	first Scorer
}

func (s *scorerDocIdSet) Iterator() DocIdSetIterator {
	s.mu.Lock()
	sc := s.first
	s.first = nil
	s.mu.Unlock()
	if sc != nil {
		return sc
	}
	sc, err := s.weight.Scorer(s.leaf, s.accept)
	if err != nil || sc == nil {
		return nil
	}
	return sc
}

func (s *scorerDocIdSet) Bits() index.Bits  { return nil }
func (s *scorerDocIdSet) IsCacheable() bool { return false }
