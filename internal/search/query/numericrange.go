package query

import (
	"bytes"
	"math"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/numeric"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

// NumericRangeQuery matches docs whose numeric field lies in a range by
// visiting the coarsest trie terms that cover it. The precision step must
// match the one the field was indexed with.
type NumericRangeQuery struct {
	multiTermBase
	precisionStep int
	numericType   index.NumericType
	// min and max are nil for an open end, otherwise the typed bound.
	min, max                   any
	minInclusive, maxInclusive bool
	// lower and upper are the inclusive sortable bounds; empty is set when
	// exclusive bounds leave nothing.
	lower, upper int64
	empty        bool
}

func newNumericRange(field string, step int, t index.NumericType, minV, maxV any, minInc, maxInc bool) (*NumericRangeQuery, error) {
	if step < 1 {
		return nil, apperrors.Invalidf("precision step must be at least 1, got %d", step)
	}
	return &NumericRangeQuery{
		multiTermBase: multiTermBase{field: field},
		precisionStep: step,
		numericType:   t,
		min:           minV,
		max:           maxV,
		minInclusive:  minInc,
		maxInclusive:  maxInc,
		lower:         math.MinInt64,
		upper:         math.MaxInt64,
	}, nil
}

// bound sets the sortable bounds from the encoded min and max.
func (q *NumericRangeQuery) bound(lo, hi *int64) *NumericRangeQuery {
	if lo != nil {
		q.lower = *lo
		if !q.minInclusive {
			if q.lower == math.MaxInt64 {
				q.empty = true
			}
			q.lower++
		}
	}
	if hi != nil {
		q.upper = *hi
		if !q.maxInclusive {
			if q.upper == math.MinInt64 {
				q.empty = true
			}
			q.upper--
		}
	}
	return q
}

func NewLongRange(field string, precisionStep int, minV, maxV *int64, minInclusive, maxInclusive bool) (*NumericRangeQuery, error) {
	q, err := newNumericRange(field, precisionStep, index.NumericLong, ptrAny(minV), ptrAny(maxV), minInclusive, maxInclusive)
	if err != nil {
		return nil, err
	}
	return q.bound(minV, maxV), nil
}

func NewIntRange(field string, precisionStep int, minV, maxV *int32, minInclusive, maxInclusive bool) (*NumericRangeQuery, error) {
	q, err := newNumericRange(field, precisionStep, index.NumericInt, ptrAny(minV), ptrAny(maxV), minInclusive, maxInclusive)
	if err != nil {
		return nil, err
	}
	return q.bound(encodePtr(minV, numeric.Int32ToLong), encodePtr(maxV, numeric.Int32ToLong)), nil
}

func NewFloatRange(field string, precisionStep int, minV, maxV *float32, minInclusive, maxInclusive bool) (*NumericRangeQuery, error) {
	q, err := newNumericRange(field, precisionStep, index.NumericFloat, ptrAny(minV), ptrAny(maxV), minInclusive, maxInclusive)
	if err != nil {
		return nil, err
	}
	return q.bound(encodePtr(minV, numeric.Float32ToSortableLong), encodePtr(maxV, numeric.Float32ToSortableLong)), nil
}

func NewDoubleRange(field string, precisionStep int, minV, maxV *float64, minInclusive, maxInclusive bool) (*NumericRangeQuery, error) {
	q, err := newNumericRange(field, precisionStep, index.NumericDouble, ptrAny(minV), ptrAny(maxV), minInclusive, maxInclusive)
	if err != nil {
		return nil, err
	}
	return q.bound(encodePtr(minV, numeric.DoubleToSortableLong), encodePtr(maxV, numeric.DoubleToSortableLong)), nil
}

func ptrAny[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func encodePtr[T any](p *T, enc func(T) int64) *int64 {
	if p == nil {
		return nil
	}
	v := enc(*p)
	return &v
}

func (q *NumericRangeQuery) PrecisionStep() int             { return q.precisionStep }
func (q *NumericRangeQuery) NumericType() index.NumericType { return q.numericType }
func (q *NumericRangeQuery) Min() any                       { return q.min }
func (q *NumericRangeQuery) Max() any                       { return q.max }
func (q *NumericRangeQuery) IncludesMin() bool              { return q.minInclusive }
func (q *NumericRangeQuery) IncludesMax() bool              { return q.maxInclusive }

// Ranges returns the trie sub-ranges the query visits, ordered by lower
// term.
func (q *NumericRangeQuery) Ranges() []numeric.Range {
	if q.empty {
		return nil
	}
	return numeric.SplitLongRange(q.lower, q.upper, q.precisionStep)
}

func (q *NumericRangeQuery) TermMatcher(*index.Terms) TermMatcher {
	ranges := q.Ranges()
	if len(ranges) == 0 {
		return nil
	}
	return &trieMatcher{ranges: ranges}
}

func (q *NumericRangeQuery) Rewrite(s *search.IndexSearcher) (search.Query, error) {
	return q.RewriteMethod().Rewrite(s, q)
}

func (q *NumericRangeQuery) Clone() search.Query {
	c := *q
	return &c
}

func (q *NumericRangeQuery) String() string {
	open, closing := "{", "}"
	if q.minInclusive {
		open = "["
	}
	if q.maxInclusive {
		closing = "]"
	}
	return q.field + ":" + open + numericBound(q.min) + " TO " + numericBound(q.max) + closing + search.BoostString(q.Boost())
}

func numericBound(v any) string {
	switch n := v.(type) {
	case nil:
		return "*"
	case int64:
		return strconv.FormatInt(n, 10)
	case int32:
		return strconv.FormatInt(int64(n), 10)
	case float32:
		return strconv.FormatFloat(float64(n), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	return "?"
}

// trieMatcher walks the sub-ranges in term order, seeking to the lower
// term of each and accepting terms up to its upper term.
type trieMatcher struct {
	ranges []numeric.Range
	next   int
	upper  []byte
}

func (m *trieMatcher) NextSeekTerm(current []byte) []byte {
	for m.next < len(m.ranges) {
		r := m.ranges[m.next]
		m.next++
		m.upper = r.Max
		if current != nil && bytes.Compare(current, m.upper) > 0 {
			continue
		}
		return r.Min
	}
	return nil
}

func (m *trieMatcher) Accept(term []byte) AcceptStatus {
	for m.upper == nil || bytes.Compare(term, m.upper) > 0 {
		if m.next >= len(m.ranges) {
			return AcceptEnd
		}
		if bytes.Compare(term, m.ranges[m.next].Min) < 0 {
			return AcceptNoAndSeek
		}
		m.upper = m.ranges[m.next].Max
		m.next++
	}
	return AcceptYes
}
