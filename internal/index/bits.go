package index

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// NoMoreDocs is the sentinel doc id returned by exhausted iterators.
const NoMoreDocs = math.MaxInt32

// Bits is random access to a per-segment set of doc ids, used for live docs
// and accept docs.
type Bits interface {
	Get(doc int) bool
	Len() int
}

// MatchAllBits accepts every doc below its length.
type MatchAllBits int

func (b MatchAllBits) Get(doc int) bool { return doc >= 0 && doc < int(b) }
func (b MatchAllBits) Len() int         { return int(b) }

// MatchNoBits accepts nothing.
type MatchNoBits int

func (b MatchNoBits) Get(int) bool { return false }
func (b MatchNoBits) Len() int     { return int(b) }

// liveDocs accepts docs absent from the deleted bitmap.
type liveDocs struct {
	deleted *roaring.Bitmap
	maxDoc  int
}

func (l liveDocs) Get(doc int) bool { return !l.deleted.Contains(uint32(doc)) }
func (l liveDocs) Len() int         { return l.maxDoc }
