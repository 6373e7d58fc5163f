// Package fieldcache un-inverts indexed fields into per-document value
// arrays, one per segment core, for sorting and function scoring.
//
// Entries are computed at most once per (core, field, type, parser) even
// under concurrent requests, and are dropped when the core closes. Every
// caller asking for the same entry gets the same slice, which must be
// treated as read-only.
package fieldcache

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/numeric"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/metrics"
)

type entryKey struct {
	core   *index.SegmentCore
	field  string
	kind   string
	parser string
}

func (k entryKey) String() string {
	return fmt.Sprintf("%p/%s/%s/%s", k.core, k.field, k.kind, k.parser)
}

// Cache holds un-inverted field values. The zero value is not usable; call
// New.
type Cache struct {
	mu      sync.RWMutex
	entries map[entryKey]any
	watched map[*index.SegmentCore]struct{}
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(m *metrics.Metrics) *Cache {
	return &Cache{
		entries: make(map[entryKey]any),
		watched: make(map[*index.SegmentCore]struct{}),
		metrics: m,
		logger:  slog.Default().With("component", "field-cache"),
	}
}

func (c *Cache) Bytes(seg *index.Segment, field string, p ByteParser) ([]int8, error) {
	if p == nil {
		p = DefaultByteParser
	}
	return load(c, seg, field, "byte", p, p.ParseByte)
}

func (c *Cache) Shorts(seg *index.Segment, field string, p ShortParser) ([]int16, error) {
	if p == nil {
		p = DefaultShortParser
	}
	return load(c, seg, field, "short", p, p.ParseShort)
}

// Ints loads int values; a nil parser picks the trie parser for numeric
// fields and the decimal parser otherwise.
func (c *Cache) Ints(seg *index.Segment, field string, p IntParser) ([]int32, error) {
	if p == nil {
		p = DefaultIntParser
		if isTrieField(seg, field) {
			p = NumericIntParser
		}
	}
	return load(c, seg, field, "int", p, p.ParseInt)
}

func (c *Cache) Longs(seg *index.Segment, field string, p LongParser) ([]int64, error) {
	if p == nil {
		p = DefaultLongParser
		if isTrieField(seg, field) {
			p = NumericLongParser
		}
	}
	return load(c, seg, field, "long", p, p.ParseLong)
}

func (c *Cache) Floats(seg *index.Segment, field string, p FloatParser) ([]float32, error) {
	if p == nil {
		p = DefaultFloatParser
		if isTrieField(seg, field) {
			p = NumericFloatParser
		}
	}
	return load(c, seg, field, "float", p, p.ParseFloat)
}

func (c *Cache) Doubles(seg *index.Segment, field string, p DoubleParser) ([]float64, error) {
	if p == nil {
		p = DefaultDoubleParser
		if isTrieField(seg, field) {
			p = NumericDoubleParser
		}
	}
	return load(c, seg, field, "double", p, p.ParseDouble)
}

type rawParser struct{}

func (rawParser) Name() string       { return "raw" }
func (rawParser) Accept([]byte) bool { return true }

// Strings returns the term of each doc, "" for docs without the field.
func (c *Cache) Strings(seg *index.Segment, field string) ([]string, error) {
	return load(c, seg, field, "string", rawParser{}, func(term []byte) (string, error) {
		return string(term), nil
	})
}

// DocsWithField returns the docs having at least one term in field.
func (c *Cache) DocsWithField(seg *index.Segment, field string) (index.Bits, error) {
	terms := seg.Terms(field)
	if terms == nil {
		return index.MatchNoBits(seg.MaxDoc()), nil
	}
	key := entryKey{core: seg.Core(), field: field, kind: "docs-with-field"}
	v, err := c.compute(key, func() (any, error) {
		bm := roaring.New()
		te := terms.Iterator()
		for term := te.Next(); term != nil; term = te.Next() {
			pe := te.Postings(nil)
			for doc := pe.NextDoc(); doc != index.NoMoreDocs; doc = pe.NextDoc() {
				bm.Add(uint32(doc))
			}
		}
		return docBits{bm: bm, maxDoc: seg.MaxDoc()}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(docBits), nil
}

type docBits struct {
	bm     *roaring.Bitmap
	maxDoc int
}

func (d docBits) Get(doc int) bool { return d.bm.Contains(uint32(doc)) }
func (d docBits) Len() int         { return d.maxDoc }

// Entries is the number of cached entries.
func (c *Cache) Entries() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops every entry of core.
func (c *Cache) Purge(core *index.SegmentCore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if k.core == core {
			delete(c.entries, k)
			n++
		}
	}
	delete(c.watched, core)
	if n > 0 {
		c.logger.Debug("purged field cache entries", "segment", core.Name(), "entries", n)
	}
}

// PurgeAll empties the cache.
func (c *Cache) PurgeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[entryKey]any)
	c.watched = make(map[*index.SegmentCore]struct{})
}

// load un-inverts field; when several terms of a doc pass the parser the
// greatest one wins. Missing fields yield zero values and no entry.
func load[T any](c *Cache, seg *index.Segment, field, kind string, p Parser, parse func([]byte) (T, error)) ([]T, error) {
	terms := seg.Terms(field)
	if terms == nil {
		return make([]T, seg.MaxDoc()), nil
	}
	key := entryKey{core: seg.Core(), field: field, kind: kind, parser: p.Name()}
	v, err := c.compute(key, func() (any, error) {
		values := make([]T, seg.MaxDoc())
		te := terms.Iterator()
		for term := te.Next(); term != nil; term = te.Next() {
			if !p.Accept(term) {
				continue
			}
			val, err := parse(term)
			if err != nil {
				return nil, fmt.Errorf("parsing term %q of field %s with %s: %w", term, field, p.Name(), err)
			}
			pe := te.Postings(nil)
			for doc := pe.NextDoc(); doc != index.NoMoreDocs; doc = pe.NextDoc() {
				values[doc] = val
			}
		}
		c.metrics.FieldCacheLoad(kind)
		return values, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}

func (c *Cache) compute(key entryKey, fn func() (any, error)) (any, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.store(key, v)
		return v, nil
	})
	return v, err
}

func (c *Cache) lookup(key entryKey) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *Cache) store(key entryKey, v any) {
	c.mu.Lock()
	c.entries[key] = v
	_, watched := c.watched[key.core]
	c.watched[key.core] = struct{}{}
	c.mu.Unlock()
	if !watched {
		key.core.AddClosedListener(c.Purge)
	}
	c.logger.Debug("field cache entry loaded", "segment", key.core.Name(), "field", key.field, "type", key.kind)
}

// isTrieField reports whether the first term of field is a full precision
// numeric trie term.
func isTrieField(seg *index.Segment, field string) bool {
	terms := seg.Terms(field)
	if terms == nil {
		return false
	}
	first := terms.Iterator().Next()
	if !numeric.IsFullPrecision(first) {
		return false
	}
	_, _, err := numeric.DecodeLong(first)
	return err == nil
}
