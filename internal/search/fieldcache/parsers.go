package fieldcache

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/numeric"
)

// Parser turns indexed terms into per-doc values. Accept filters the terms
// considered; Name identifies the parser in cache keys.
type Parser interface {
	Name() string
	Accept(term []byte) bool
}

type ByteParser interface {
	Parser
	ParseByte(term []byte) (int8, error)
}

type ShortParser interface {
	Parser
	ParseShort(term []byte) (int16, error)
}

type IntParser interface {
	Parser
	ParseInt(term []byte) (int32, error)
}

type LongParser interface {
	Parser
	ParseLong(term []byte) (int64, error)
}

type FloatParser interface {
	Parser
	ParseFloat(term []byte) (float32, error)
}

type DoubleParser interface {
	Parser
	ParseDouble(term []byte) (float64, error)
}

// textParser parses decimal term text.
type textParser struct{}

func (textParser) Accept([]byte) bool { return true }

type defaultByteParser struct{ textParser }

func (defaultByteParser) Name() string { return "default-byte" }
func (defaultByteParser) ParseByte(term []byte) (int8, error) {
	v, err := strconv.ParseInt(string(term), 10, 8)
	return int8(v), err
}

type defaultShortParser struct{ textParser }

func (defaultShortParser) Name() string { return "default-short" }
func (defaultShortParser) ParseShort(term []byte) (int16, error) {
	v, err := strconv.ParseInt(string(term), 10, 16)
	return int16(v), err
}

type defaultIntParser struct{ textParser }

func (defaultIntParser) Name() string { return "default-int" }
func (defaultIntParser) ParseInt(term []byte) (int32, error) {
	v, err := strconv.ParseInt(string(term), 10, 32)
	return int32(v), err
}

type defaultLongParser struct{ textParser }

func (defaultLongParser) Name() string { return "default-long" }
func (defaultLongParser) ParseLong(term []byte) (int64, error) {
	return strconv.ParseInt(string(term), 10, 64)
}

type defaultFloatParser struct{ textParser }

func (defaultFloatParser) Name() string { return "default-float" }
func (defaultFloatParser) ParseFloat(term []byte) (float32, error) {
	v, err := strconv.ParseFloat(string(term), 32)
	return float32(v), err
}

type defaultDoubleParser struct{ textParser }

func (defaultDoubleParser) Name() string { return "default-double" }
func (defaultDoubleParser) ParseDouble(term []byte) (float64, error) {
	return strconv.ParseFloat(string(term), 64)
}

// trieParser reads full precision prefix-coded terms and skips the coarser
// trie levels.
type trieParser struct{}

func (trieParser) Accept(term []byte) bool { return numeric.IsFullPrecision(term) }

func decodeTrie(term []byte) (int64, error) {
	v, _, err := numeric.DecodeLong(term)
	return v, err
}

type trieIntParser struct{ trieParser }

func (trieIntParser) Name() string { return "trie-int" }
func (trieIntParser) ParseInt(term []byte) (int32, error) {
	v, err := decodeTrie(term)
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("value %d overflows int32", v)
	}
	return int32(v), nil
}

type trieLongParser struct{ trieParser }

func (trieLongParser) Name() string { return "trie-long" }
func (trieLongParser) ParseLong(term []byte) (int64, error) {
	return decodeTrie(term)
}

type trieFloatParser struct{ trieParser }

func (trieFloatParser) Name() string { return "trie-float" }
func (trieFloatParser) ParseFloat(term []byte) (float32, error) {
	v, err := decodeTrie(term)
	return float32(numeric.SortableLongToDouble(v)), err
}

type trieDoubleParser struct{ trieParser }

func (trieDoubleParser) Name() string { return "trie-double" }
func (trieDoubleParser) ParseDouble(term []byte) (float64, error) {
	v, err := decodeTrie(term)
	return numeric.SortableLongToDouble(v), err
}

// Parsers for decimal text terms and for numeric trie fields.
var (
	DefaultByteParser   ByteParser   = defaultByteParser{}
	DefaultShortParser  ShortParser  = defaultShortParser{}
	DefaultIntParser    IntParser    = defaultIntParser{}
	DefaultLongParser   LongParser   = defaultLongParser{}
	DefaultFloatParser  FloatParser  = defaultFloatParser{}
	DefaultDoubleParser DoubleParser = defaultDoubleParser{}

	NumericIntParser    IntParser    = trieIntParser{}
	NumericLongParser   LongParser   = trieLongParser{}
	NumericFloatParser  FloatParser  = trieFloatParser{}
	NumericDoubleParser DoubleParser = trieDoubleParser{}
)
