// Package numeric encodes numbers as prefix-coded trie terms and splits
// numeric ranges into the minimal set of trie sub-ranges.
//
// Every value is indexed at full precision (shift 0) and at each coarser
// level shift = k*precisionStep below 64. Ints are sign-extended and floats
// are mapped to sortable int64s, so all numeric types share one trie.
package numeric

import (
	"bytes"
	"fmt"
	"math"
	"slices"

	blugenumeric "github.com/blugelabs/bluge/numeric"
)

const (
	// PrecisionStepDefault is the precision step used when none is given.
	PrecisionStepDefault = 4
	// PrecisionStepInfinite indexes and queries full precision terms only.
	PrecisionStepInfinite = math.MaxInt32

	valueBits = 64
)

// EncodeLong returns the prefix-coded term for v at the given shift.
func EncodeLong(v int64, shift uint) []byte {
	return blugenumeric.MustNewPrefixCodedInt64(v, shift)
}

// DecodeLong returns the value and shift of a prefix-coded term. The value
// has its low shift bits cleared.
func DecodeLong(term []byte) (int64, uint, error) {
	pc := blugenumeric.PrefixCoded(term)
	shift, err := pc.Shift()
	if err != nil {
		return 0, 0, fmt.Errorf("decoding shift of %x: %w", term, err)
	}
	v, err := pc.Int64()
	if err != nil {
		return 0, 0, fmt.Errorf("decoding value of %x: %w", term, err)
	}
	return v, shift, nil
}

// IsFullPrecision reports whether term is a shift-0 term.
func IsFullPrecision(term []byte) bool {
	return len(term) > 0 && term[0] == blugenumeric.ShiftStartInt64
}

// LongTrieTerms returns the terms indexed for v, full precision first.
func LongTrieTerms(v int64, precisionStep int) [][]byte {
	if precisionStep >= valueBits {
		return [][]byte{EncodeLong(v, 0)}
	}
	terms := make([][]byte, 0, valueBits/precisionStep+1)
	for shift := 0; shift < valueBits; shift += precisionStep {
		terms = append(terms, EncodeLong(v, uint(shift)))
	}
	return terms
}

// Int32ToLong maps an int32 into the shared int64 domain.
func Int32ToLong(v int32) int64 {
	return int64(v)
}

// canonicalNaN is the one NaN bit pattern that gets encoded. Every NaN
// payload, including those with the sign bit set, maps to it.
var canonicalNaN = math.Float64frombits(0x7ff8000000000000)

// DoubleToSortableLong maps a float64 to an int64 with the same ordering.
// All NaNs share one encoding, which sorts above +Inf.
func DoubleToSortableLong(f float64) int64 {
	if math.IsNaN(f) {
		f = canonicalNaN
	}
	return blugenumeric.Float64ToInt64(f)
}

// SortableLongToDouble reverses DoubleToSortableLong.
func SortableLongToDouble(v int64) float64 {
	return blugenumeric.Int64ToFloat64(v)
}

// Float32ToSortableLong widens f to float64 before encoding, so float and
// double fields share one ordering.
func Float32ToSortableLong(f float32) int64 {
	return DoubleToSortableLong(float64(f))
}

// Range is one inclusive sub-range of trie terms at a single shift.
type Range struct {
	Min, Max []byte
	Shift    uint
}

// Contains reports whether term falls inside r.
func (r Range) Contains(term []byte) bool {
	return bytes.Compare(term, r.Min) >= 0 && bytes.Compare(term, r.Max) <= 0
}

// SplitLongRange splits the inclusive range [minBound, maxBound] into trie
// sub-ranges ordered by their lower term. It returns nil when the range is
// empty.
func SplitLongRange(minBound, maxBound int64, precisionStep int) []Range {
	if minBound > maxBound {
		return nil
	}
	if precisionStep >= valueBits {
		return []Range{newRange(minBound, maxBound, 0)}
	}
	step := uint(precisionStep)
	var lower, upper []Range
	for shift := uint(0); ; shift += step {
		diff := int64(1) << (shift + step)
		mask := ((int64(1) << step) - 1) << shift
		hasLower := minBound&mask != 0
		hasUpper := maxBound&mask != mask

		nextMin := minBound &^ mask
		if hasLower {
			nextMin = (minBound + diff) &^ mask
		}
		nextMax := maxBound &^ mask
		if hasUpper {
			nextMax = (maxBound - diff) &^ mask
		}
		lowerWrapped := nextMin < minBound
		upperWrapped := nextMax > maxBound

		if shift+step >= valueBits || nextMin > nextMax || lowerWrapped || upperWrapped {
			lower = append(lower, newRange(minBound, maxBound, shift))
			break
		}
		if hasLower {
			lower = append(lower, newRange(minBound, minBound|mask, shift))
		}
		if hasUpper {
			upper = append(upper, newRange(maxBound&^mask, maxBound, shift))
		}
		minBound, maxBound = nextMin, nextMax
	}
	out := append(lower, upper...)
	slices.SortFunc(out, func(a, b Range) int { return bytes.Compare(a.Min, b.Min) })
	return out
}

func newRange(minBound, maxBound int64, shift uint) Range {
	maxBound |= (int64(1) << shift) - 1
	return Range{
		Min:   EncodeLong(minBound, shift),
		Max:   EncodeLong(maxBound, shift),
		Shift: shift,
	}
}
