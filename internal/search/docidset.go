package search

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
)

// NoMoreDocs is returned by iterators once they are exhausted.
const NoMoreDocs = index.NoMoreDocs

// DocIdSetIterator walks doc ids in strictly increasing order.
//
// DocID is -1 before the first NextDoc or Advance and NoMoreDocs after the
// end. Advance(target) moves to the first doc >= target and must only be
// called with a target beyond the current doc.
type DocIdSetIterator interface {
	DocID() int
	NextDoc() int
	Advance(target int) int
	// Cost estimates how many docs the iterator will visit.
	Cost() int64
}

// DocIdSet is a set of segment-local doc ids.
type DocIdSet interface {
	// Iterator returns nil when the set is empty.
	Iterator() DocIdSetIterator
	// Bits returns random access to the set, or nil if unsupported.
	Bits() index.Bits
	// IsCacheable reports whether the set may be kept across searches
	// without being copied.
	IsCacheable() bool
}

type emptyDocIdSet struct{}

func (*emptyDocIdSet) Iterator() DocIdSetIterator { return EmptyIterator() }
func (*emptyDocIdSet) Bits() index.Bits           { return nil }
func (*emptyDocIdSet) IsCacheable() bool          { return true }

// EmptyDocIdSet is the canonical empty set. Caches hand out this exact
// instance for segments without matches.
var EmptyDocIdSet DocIdSet = &emptyDocIdSet{}

type emptyIterator struct{ doc int }

// EmptyIterator returns an iterator with no docs.
func EmptyIterator() DocIdSetIterator { return &emptyIterator{doc: -1} }

func (it *emptyIterator) DocID() int { return it.doc }
func (it *emptyIterator) NextDoc() int {
	it.doc = NoMoreDocs
	return it.doc
}
func (it *emptyIterator) Advance(int) int {
	it.doc = NoMoreDocs
	return it.doc
}
func (it *emptyIterator) Cost() int64 { return 0 }

// BitDocIdSet is a fixed-size set backed by a roaring bitmap. It supports
// both iteration and random access and is always cacheable.
type BitDocIdSet struct {
	bm     *roaring.Bitmap
	maxDoc int
}

func NewBitDocIdSet(maxDoc int) *BitDocIdSet {
	return &BitDocIdSet{bm: roaring.New(), maxDoc: maxDoc}
}

// NewBitDocIdSetFrom drains it into a new set.
func NewBitDocIdSetFrom(it DocIdSetIterator, maxDoc int) *BitDocIdSet {
	s := NewBitDocIdSet(maxDoc)
	s.Or(it)
	return s
}

func (s *BitDocIdSet) Set(doc int)             { s.bm.Add(uint32(doc)) }
func (s *BitDocIdSet) Get(doc int) bool        { return s.bm.Contains(uint32(doc)) }
func (s *BitDocIdSet) Len() int                { return s.maxDoc }
func (s *BitDocIdSet) Cardinality() int        { return int(s.bm.GetCardinality()) }
func (s *BitDocIdSet) Bits() index.Bits        { return s }
func (s *BitDocIdSet) IsCacheable() bool       { return true }
func (s *BitDocIdSet) Bitmap() *roaring.Bitmap { return s.bm }

// Or adds every doc of it to the set.
func (s *BitDocIdSet) Or(it DocIdSetIterator) {
	if it == nil {
		return
	}
	for doc := it.NextDoc(); doc != NoMoreDocs; doc = it.NextDoc() {
		s.bm.Add(uint32(doc))
	}
}

func (s *BitDocIdSet) Iterator() DocIdSetIterator {
	if s.bm.IsEmpty() {
		return nil
	}
	return &bitIterator{it: s.bm.Iterator(), doc: -1, cost: int64(s.bm.GetCardinality())}
}

type bitIterator struct {
	it   roaring.IntPeekable
	doc  int
	cost int64
}

func (b *bitIterator) DocID() int { return b.doc }

func (b *bitIterator) NextDoc() int {
	if b.it.HasNext() {
		b.doc = int(b.it.Next())
	} else {
		b.doc = NoMoreDocs
	}
	return b.doc
}

func (b *bitIterator) Advance(target int) int {
	if target >= NoMoreDocs {
		b.doc = NoMoreDocs
		return b.doc
	}
	b.it.AdvanceIfNeeded(uint32(target))
	return b.NextDoc()
}

func (b *bitIterator) Cost() int64 { return b.cost }

// FilteredDocIdSet keeps the docs of an inner set accepted by match. It is
// evaluated lazily and therefore never cacheable.
type FilteredDocIdSet struct {
	inner DocIdSet
	match func(doc int) bool
}

func NewFilteredDocIdSet(inner DocIdSet, match func(doc int) bool) *FilteredDocIdSet {
	return &FilteredDocIdSet{inner: inner, match: match}
}

func (f *FilteredDocIdSet) IsCacheable() bool { return false }

func (f *FilteredDocIdSet) Iterator() DocIdSetIterator {
	it := f.inner.Iterator()
	if it == nil {
		return nil
	}
	return &filteredIterator{inner: it, match: f.match}
}

func (f *FilteredDocIdSet) Bits() index.Bits {
	bits := f.inner.Bits()
	if bits == nil {
		return nil
	}
	return matchBits{inner: bits, match: f.match}
}

type matchBits struct {
	inner index.Bits
	match func(int) bool
}

func (m matchBits) Get(doc int) bool { return m.inner.Get(doc) && m.match(doc) }
func (m matchBits) Len() int         { return m.inner.Len() }

type filteredIterator struct {
	inner DocIdSetIterator
	match func(int) bool
}

func (f *filteredIterator) DocID() int  { return f.inner.DocID() }
func (f *filteredIterator) Cost() int64 { return f.inner.Cost() }

func (f *filteredIterator) NextDoc() int {
	return f.skip(f.inner.NextDoc())
}

func (f *filteredIterator) Advance(target int) int {
	return f.skip(f.inner.Advance(target))
}

func (f *filteredIterator) skip(doc int) int {
	for doc != NoMoreDocs && !f.match(doc) {
		doc = f.inner.NextDoc()
	}
	return doc
}

// BitsFilteredDocIdSet restricts set to accept. A nil accept returns set
// unchanged, as does the canonical empty set.
func BitsFilteredDocIdSet(set DocIdSet, accept index.Bits) DocIdSet {
	if set == nil || accept == nil || set == EmptyDocIdSet {
		return set
	}
	return NewFilteredDocIdSet(set, accept.Get)
}

// iteratorOf returns set's iterator, treating nil sets and nil iterators as
// empty.
func iteratorOf(set DocIdSet) DocIdSetIterator {
	if set == nil {
		return nil
	}
	return set.Iterator()
}
