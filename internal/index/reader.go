package index

import (
	"fmt"
	"sort"
	"sync/atomic"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

// LeafContext locates one segment inside a composite Reader.
type LeafContext struct {
	Segment *Segment
	// DocBase is added to segment-local doc ids to form reader-global ids.
	DocBase int
	Ord     int
	Reader  *Reader
}

// Reader is a point-in-time view over an ordered list of segments.
//
// Readers are reference counted: a new Reader holds one reference, IncRef
// and TryIncRef add one, and DecRef releases one. When the count reaches
// zero the reader releases its segment cores.
type Reader struct {
	leaves  []*LeafContext
	maxDoc  int
	numDocs int
	version int64
	refs    atomic.Int32
}

// NewReader builds a reader over segments with version 0.
func NewReader(segments ...*Segment) *Reader {
	return newReader(segments, 0)
}

func newReader(segments []*Segment, version int64) *Reader {
	r := &Reader{version: version}
	r.refs.Store(1)
	base := 0
	for i, seg := range segments {
		seg.core.incRef()
		r.leaves = append(r.leaves, &LeafContext{Segment: seg, DocBase: base, Ord: i, Reader: r})
		base += seg.MaxDoc()
		r.numDocs += seg.NumDocs()
	}
	r.maxDoc = base
	return r
}

func (r *Reader) Leaves() []*LeafContext { return r.leaves }
func (r *Reader) MaxDoc() int            { return r.maxDoc }
func (r *Reader) NumDocs() int           { return r.numDocs }
func (r *Reader) NumDeleted() int        { return r.maxDoc - r.numDocs }

// Version identifies the writer state this reader was opened from.
func (r *Reader) Version() int64 { return r.version }

// DocFreq sums the doc frequency of term across segments.
func (r *Reader) DocFreq(term Term) int {
	n := 0
	for _, leaf := range r.leaves {
		n += leaf.Segment.DocFreq(term)
	}
	return n
}

// LeafFor returns the leaf holding a reader-global doc id.
func (r *Reader) LeafFor(doc int) (*LeafContext, error) {
	if doc < 0 || doc >= r.maxDoc {
		return nil, fmt.Errorf("%w: doc %d out of range [0, %d)", apperrors.ErrInvalidArgument, doc, r.maxDoc)
	}
	i := sort.Search(len(r.leaves), func(i int) bool {
		return r.leaves[i].DocBase+r.leaves[i].Segment.MaxDoc() > doc
	})
	return r.leaves[i], nil
}

// Document returns the stored fields of a reader-global doc id.
func (r *Reader) Document(doc int) (StoredDocument, error) {
	leaf, err := r.LeafFor(doc)
	if err != nil {
		return nil, err
	}
	return leaf.Segment.Document(doc - leaf.DocBase), nil
}

func (r *Reader) RefCount() int32 { return r.refs.Load() }

// IncRef adds a reference; it fails once the reader has closed.
func (r *Reader) IncRef() error {
	if !r.TryIncRef() {
		return fmt.Errorf("%w: reader", apperrors.ErrAlreadyClosed)
	}
	return nil
}

// TryIncRef adds a reference unless the count already reached zero.
func (r *Reader) TryIncRef() bool {
	for {
		n := r.refs.Load()
		if n <= 0 {
			return false
		}
		if r.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// DecRef releases a reference. Releasing more references than were taken is
// a state error.
func (r *Reader) DecRef() error {
	for {
		n := r.refs.Load()
		if n <= 0 {
			return apperrors.IllegalStatef("reader refcount is already %d", n)
		}
		if r.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				r.close()
			}
			return nil
		}
	}
}

// Close releases the caller's reference.
func (r *Reader) Close() error {
	return r.DecRef()
}

func (r *Reader) close() {
	for _, leaf := range r.leaves {
		leaf.Segment.core.decRef()
	}
}
