package search

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search/fieldcache"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

// SortType selects how a SortField compares hits.
type SortType int

const (
	SortScore SortType = iota
	SortDoc
	SortString
	SortByte
	SortShort
	SortInt
	SortLong
	SortFloat
	SortDouble
)

var sortTypeNames = map[SortType]string{
	SortScore: "score", SortDoc: "doc", SortString: "string", SortByte: "byte",
	SortShort: "short", SortInt: "int", SortLong: "long", SortFloat: "float", SortDouble: "double",
}

func (t SortType) String() string { return sortTypeNames[t] }

// ParseSortType maps a sort type name to its SortType.
func ParseSortType(name string) (SortType, error) {
	for t, n := range sortTypeNames {
		if n == strings.ToLower(name) {
			return t, nil
		}
	}
	return 0, apperrors.Invalidf("unknown sort type %q", name)
}

// SortField orders hits by one criterion. Scores sort descending and
// everything else ascending unless Reverse is set.
type SortField struct {
	Field   string
	Type    SortType
	Reverse bool
	// Parser must implement the parser interface matching Type; nil picks
	// the default.
	Parser fieldcache.Parser
}

func (f SortField) String() string {
	var s string
	switch f.Type {
	case SortScore:
		s = "<score>"
	case SortDoc:
		s = "<doc>"
	default:
		s = fmt.Sprintf("<%s: %q>", f.Type, f.Field)
	}
	if f.Reverse {
		s += "!"
	}
	return s
}

// Sort is an ordered list of criteria; ties fall back to doc id.
type Sort struct {
	Fields []SortField
}

func NewSort(fields ...SortField) Sort { return Sort{Fields: fields} }

var (
	RelevanceSort  = NewSort(SortField{Type: SortScore})
	IndexOrderSort = NewSort(SortField{Type: SortDoc})
)

func (s Sort) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

func (s Sort) needsScores() bool {
	for _, f := range s.Fields {
		if f.Type == SortScore {
			return true
		}
	}
	return false
}

// order returns the comparator over ScoreDoc.Fields built by leafValues.
func (s Sort) order() docOrder {
	return func(a, b *ScoreDoc) int {
		for i, f := range s.Fields {
			c := compareSortValues(f.Type, a.Fields[i], b.Fields[i])
			if f.Reverse {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Doc, b.Doc)
	}
}

func compareSortValues(t SortType, a, b any) int {
	switch t {
	case SortScore:
		// higher scores first
		return cmp.Compare(b.(float64), a.(float64))
	case SortDoc:
		return cmp.Compare(a.(int), b.(int))
	case SortString:
		return strings.Compare(a.(string), b.(string))
	case SortFloat, SortDouble:
		return cmp.Compare(a.(float64), b.(float64))
	default:
		return cmp.Compare(a.(int64), b.(int64))
	}
}

// sortValueFunc reads the sort value of a segment-local doc.
type sortValueFunc func(doc int, score float64) any

func (s Sort) leafValues(fc *fieldcache.Cache, leaf *index.LeafContext) ([]sortValueFunc, error) {
	seg := leaf.Segment
	funcs := make([]sortValueFunc, len(s.Fields))
	for i, f := range s.Fields {
		var err error
		switch f.Type {
		case SortScore:
			funcs[i] = func(_ int, score float64) any { return score }
		case SortDoc:
			base := leaf.DocBase
			funcs[i] = func(doc int, _ float64) any { return base + doc }
		case SortString:
			var vals []string
			vals, err = fc.Strings(seg, f.Field)
			funcs[i] = func(doc int, _ float64) any { return vals[doc] }
		case SortByte:
			var vals []int8
			vals, err = fc.Bytes(seg, f.Field, parserAs[fieldcache.ByteParser](f.Parser))
			funcs[i] = func(doc int, _ float64) any { return int64(vals[doc]) }
		case SortShort:
			var vals []int16
			vals, err = fc.Shorts(seg, f.Field, parserAs[fieldcache.ShortParser](f.Parser))
			funcs[i] = func(doc int, _ float64) any { return int64(vals[doc]) }
		case SortInt:
			var vals []int32
			vals, err = fc.Ints(seg, f.Field, parserAs[fieldcache.IntParser](f.Parser))
			funcs[i] = func(doc int, _ float64) any { return int64(vals[doc]) }
		case SortLong:
			var vals []int64
			vals, err = fc.Longs(seg, f.Field, parserAs[fieldcache.LongParser](f.Parser))
			funcs[i] = func(doc int, _ float64) any { return vals[doc] }
		case SortFloat:
			var vals []float32
			vals, err = fc.Floats(seg, f.Field, parserAs[fieldcache.FloatParser](f.Parser))
			funcs[i] = func(doc int, _ float64) any { return float64(vals[doc]) }
		case SortDouble:
			var vals []float64
			vals, err = fc.Doubles(seg, f.Field, parserAs[fieldcache.DoubleParser](f.Parser))
			funcs[i] = func(doc int, _ float64) any { return vals[doc] }
		default:
			return nil, apperrors.Invalidf("unsupported sort type %d", f.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("loading sort values for %s: %w", f, err)
		}
	}
	return funcs, nil
}

// parserAs narrows a generic parser; a parser of the wrong kind is ignored
// in favor of the default, which validate reports earlier.
func parserAs[P fieldcache.Parser](p fieldcache.Parser) P {
	typed, _ := p.(P)
	return typed
}

func (s Sort) validate() error {
	if len(s.Fields) == 0 {
		return apperrors.Invalidf("sort has no fields")
	}
	for _, f := range s.Fields {
		if f.Type != SortScore && f.Type != SortDoc && f.Field == "" {
			return apperrors.Invalidf("sort type %s requires a field", f.Type)
		}
		if f.Parser == nil {
			continue
		}
		var ok bool
		switch f.Type {
		case SortByte:
			_, ok = f.Parser.(fieldcache.ByteParser)
		case SortShort:
			_, ok = f.Parser.(fieldcache.ShortParser)
		case SortInt:
			_, ok = f.Parser.(fieldcache.IntParser)
		case SortLong:
			_, ok = f.Parser.(fieldcache.LongParser)
		case SortFloat:
			_, ok = f.Parser.(fieldcache.FloatParser)
		case SortDouble:
			_, ok = f.Parser.(fieldcache.DoubleParser)
		}
		if !ok {
			return apperrors.Invalidf("parser %s does not fit sort type %s", f.Parser.Name(), f.Type)
		}
	}
	return nil
}

// topFieldCollector keeps the n best hits of one segment under a Sort.
type topFieldCollector struct {
	n      int
	heap   topHeap
	values []sortValueFunc
	total  int
	max    float64
	base   int
	scorer Scorer
}

func (c *topFieldCollector) collect(doc int) {
	score := c.scorer.Score()
	c.total++
	if c.total == 1 || score > c.max {
		c.max = score
	}
	d := ScoreDoc{Doc: c.base + doc, Score: score, Fields: make([]any, len(c.values))}
	for i, fn := range c.values {
		d.Fields[i] = fn(doc, score)
	}
	c.heap.offer(d, c.n)
}
