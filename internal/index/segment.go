package index

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
)

// SegmentCore is the immutable part of a segment: term dictionaries,
// postings, field lengths and stored fields. Its pointer identity is the
// cache key for per-segment caches, and it stays the same when a segment
// only gains deletions.
//
// Cores are reference counted by the writer and by every open Reader. When
// the last reference is released the closed listeners run exactly once.
type SegmentCore struct {
	name   string
	maxDoc int
	fields map[string]*fieldData
	stored []StoredDocument

	refs      atomic.Int32
	mu        sync.Mutex
	listeners []func(*SegmentCore)
	closed    bool
	persisted atomic.Bool
}

func newSegmentCore(name string, maxDoc int, fields map[string]*fieldData, stored []StoredDocument) *SegmentCore {
	c := &SegmentCore{name: name, maxDoc: maxDoc, fields: fields, stored: stored}
	c.refs.Store(1)
	return c
}

func (c *SegmentCore) Name() string { return c.name }
func (c *SegmentCore) MaxDoc() int  { return c.maxDoc }

// FieldNames returns the indexed field names in sorted order.
func (c *SegmentCore) FieldNames() []string {
	names := make([]string, 0, len(c.fields))
	for name := range c.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddClosedListener registers fn to run when the core is released for the
// last time. It runs immediately if the core is already closed.
func (c *SegmentCore) AddClosedListener(fn func(*SegmentCore)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fn(c)
		return
	}
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// ClosedListenerCount returns the number of listeners waiting for close.
func (c *SegmentCore) ClosedListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

func (c *SegmentCore) incRef() {
	c.refs.Add(1)
}

func (c *SegmentCore) decRef() {
	if c.refs.Add(-1) != 0 {
		return
	}
	c.mu.Lock()
	c.closed = true
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// Closed reports whether every reference has been released.
func (c *SegmentCore) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Segment is a core plus its deleted docs. The deleted bitmap is never
// mutated once the segment is published; new deletions produce a new
// Segment sharing the core.
type Segment struct {
	core    *SegmentCore
	deleted *roaring.Bitmap
}

func (s *Segment) Core() *SegmentCore { return s.core }
func (s *Segment) Name() string       { return s.core.name }
func (s *Segment) MaxDoc() int        { return s.core.maxDoc }

func (s *Segment) NumDeleted() int {
	if s.deleted == nil {
		return 0
	}
	return int(s.deleted.GetCardinality())
}

func (s *Segment) NumDocs() int { return s.core.maxDoc - s.NumDeleted() }

func (s *Segment) HasDeletions() bool { return s.NumDeleted() > 0 }

// LiveDocs returns nil when the segment has no deletions.
func (s *Segment) LiveDocs() Bits {
	if !s.HasDeletions() {
		return nil
	}
	return liveDocs{deleted: s.deleted, maxDoc: s.core.maxDoc}
}

// Terms returns the field's dictionary, or nil if the field has no terms in
// this segment.
func (s *Segment) Terms(field string) *Terms {
	fd, ok := s.core.fields[field]
	if !ok || len(fd.Terms) == 0 {
		return nil
	}
	return &Terms{field: field, data: fd}
}

// Postings returns the postings of term, or nil if it does not occur.
func (s *Segment) Postings(term Term, accept Bits) *PostingsEnum {
	fd, ok := s.core.fields[term.Field]
	if !ok {
		return nil
	}
	i, found := fd.find(term.Text)
	if !found {
		return nil
	}
	return newPostingsEnum(fd.Lists[i], accept)
}

// DocFreq counts docs containing term, including deleted ones.
func (s *Segment) DocFreq(term Term) int {
	fd, ok := s.core.fields[term.Field]
	if !ok {
		return 0
	}
	i, found := fd.find(term.Text)
	if !found {
		return 0
	}
	return len(fd.Lists[i].Docs)
}

// FieldLength returns the token count of field in doc. ok is false when the
// field omits norms.
func (s *Segment) FieldLength(field string, doc int) (length int, ok bool) {
	fd, exists := s.core.fields[field]
	if !exists || fd.OmitNorms || fd.Lengths == nil {
		return 0, false
	}
	return int(fd.Lengths[doc]), true
}

// HasNorms reports whether field keeps length norms in this segment.
func (s *Segment) HasNorms(field string) bool {
	fd, ok := s.core.fields[field]
	return ok && !fd.OmitNorms && fd.Lengths != nil
}

// Document returns the stored fields of a segment-local doc.
func (s *Segment) Document(doc int) StoredDocument {
	if doc < 0 || doc >= len(s.core.stored) {
		return nil
	}
	return s.core.stored[doc]
}

// withDeletions returns a segment sharing the core with docs added to the
// deleted set, or s itself if nothing changed.
func (s *Segment) withDeletions(docs *roaring.Bitmap) *Segment {
	if docs.IsEmpty() {
		return s
	}
	var merged *roaring.Bitmap
	if s.deleted == nil {
		merged = docs.Clone()
	} else {
		merged = roaring.Or(s.deleted, docs)
	}
	if s.deleted != nil && merged.GetCardinality() == s.deleted.GetCardinality() {
		return s
	}
	merged.RunOptimize()
	return &Segment{core: s.core, deleted: merged}
}
