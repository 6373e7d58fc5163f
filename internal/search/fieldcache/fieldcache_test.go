package fieldcache

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
)

func openTestReader(t *testing.T, docs ...*index.Document) (*index.Writer, *index.Reader) {
	t.Helper()
	w, err := index.OpenWriter(index.WriterConfig{Analyzer: analysis.Whitespace{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	for _, d := range docs {
		_, err := w.AddDocument(d)
		require.NoError(t, err)
	}
	r, err := index.OpenReader(w)
	require.NoError(t, err)
	return w, r
}

func valueDocs() []*index.Document {
	rows := []struct {
		id    string
		num   int32
		big   int64
		price float64
		text  string
	}{
		{"a", -7, 1 << 40, 2.5, "12"},
		{"b", 300, -5, -1.25, "7"},
		{"c", 0, 0, 1e10, "-3"},
	}
	docs := make([]*index.Document, 0, len(rows)+1)
	for _, row := range rows {
		docs = append(docs, index.NewDocument(
			index.NewStringField("id", row.id, true),
			index.NewIntField("num", row.num, 4, false),
			index.NewLongField("big", row.big, 8, false),
			index.NewDoubleField("price", row.price, 4, false),
			index.NewFloatField("ratio", float32(row.price), 4, false),
			index.NewStringField("text", row.text, false),
		))
	}
	// a doc without any value fields
	docs = append(docs, index.NewDocument(index.NewStringField("id", "d", true)))
	return docs
}

func TestTrieValues(t *testing.T) {
	_, r := openTestReader(t, valueDocs()...)
	defer r.DecRef()
	seg := r.Leaves()[0].Segment
	c := New(nil)

	ints, err := c.Ints(seg, "num", nil)
	require.NoError(t, err)
	assert.Equal(t, []int32{-7, 300, 0, 0}, ints)

	longs, err := c.Longs(seg, "big", nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1 << 40, -5, 0, 0}, longs)

	doubles, err := c.Doubles(seg, "price", nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, -1.25, 1e10, 0}, doubles)

	floats, err := c.Floats(seg, "ratio", nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{2.5, -1.25, 1e10, 0}, floats)

	// an explicit parser of the right kind works too
	longsOfInts, err := c.Longs(seg, "num", NumericLongParser)
	require.NoError(t, err)
	assert.Equal(t, []int64{-7, 300, 0, 0}, longsOfInts)
}

func TestTextValues(t *testing.T) {
	_, r := openTestReader(t, valueDocs()...)
	defer r.DecRef()
	seg := r.Leaves()[0].Segment
	c := New(nil)

	ints, err := c.Ints(seg, "text", nil)
	require.NoError(t, err)
	assert.Equal(t, []int32{12, 7, -3, 0}, ints)

	bytes, err := c.Bytes(seg, "text", nil)
	require.NoError(t, err)
	assert.Equal(t, []int8{12, 7, -3, 0}, bytes)

	shorts, err := c.Shorts(seg, "text", nil)
	require.NoError(t, err)
	assert.Equal(t, []int16{12, 7, -3, 0}, shorts)

	strs, err := c.Strings(seg, "id")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, strs)

	_, err = c.Ints(seg, "id", DefaultIntParser)
	assert.Error(t, err, "non-numeric terms fail the decimal parser")
}

func TestMultiValuedFieldKeepsGreatestTerm(t *testing.T) {
	_, r := openTestReader(t, index.NewDocument(index.NewTextField("body", "pear apple zucchini fig", false)))
	defer r.DecRef()
	strs, err := New(nil).Strings(r.Leaves()[0].Segment, "body")
	require.NoError(t, err)
	assert.Equal(t, []string{"zucchini"}, strs)
}

func TestMissingFieldHasNoEntry(t *testing.T) {
	_, r := openTestReader(t, valueDocs()...)
	defer r.DecRef()
	seg := r.Leaves()[0].Segment
	c := New(nil)

	ints, err := c.Ints(seg, "nope", nil)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 0, 0, 0}, ints)
	assert.Zero(t, c.Entries())

	bits, err := c.DocsWithField(seg, "num")
	require.NoError(t, err)
	assert.True(t, bits.Get(0))
	assert.False(t, bits.Get(3))
	assert.Equal(t, 4, bits.Len())

	none, err := c.DocsWithField(seg, "nope")
	require.NoError(t, err)
	assert.False(t, none.Get(0))
}

func TestEntriesAreShared(t *testing.T) {
	_, r := openTestReader(t, valueDocs()...)
	defer r.DecRef()
	seg := r.Leaves()[0].Segment
	c := New(nil)

	a, err := c.Ints(seg, "num", nil)
	require.NoError(t, err)
	b, err := c.Ints(seg, "num", nil)
	require.NoError(t, err)
	assert.Same(t, &a[0], &b[0])
	assert.Equal(t, 1, c.Entries())

	// a different parser is a different entry
	_, err = c.Longs(seg, "num", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Entries())

	c.PurgeAll()
	assert.Zero(t, c.Entries())
}

type countingIntParser struct {
	calls atomic.Int64
}

func (p *countingIntParser) Name() string       { return "counting" }
func (p *countingIntParser) Accept([]byte) bool { return true }
func (p *countingIntParser) ParseInt(term []byte) (int32, error) {
	p.calls.Add(1)
	v, err := strconv.Atoi(string(term))
	return int32(v), err
}

func TestConcurrentLoadsComputeOnce(t *testing.T) {
	docs := make([]*index.Document, 200)
	for i := range docs {
		docs[i] = index.NewDocument(index.NewStringField("n", strconv.Itoa(i), false))
	}
	_, r := openTestReader(t, docs...)
	defer r.DecRef()
	seg := r.Leaves()[0].Segment
	c := New(nil)
	p := &countingIntParser{}

	var wg sync.WaitGroup
	results := make([][]int32, 16)
	for g := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vals, err := c.Ints(seg, "n", p)
			assert.NoError(t, err)
			results[g] = vals
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(200), p.calls.Load(), "every term parsed exactly once")
	for _, vals := range results[1:] {
		assert.Same(t, &results[0][0], &vals[0])
	}
	assert.Equal(t, int32(199), results[0][199])
}

type failingParser struct{}

var errBadTerm = errors.New("bad term")

func (failingParser) Name() string                    { return "failing" }
func (failingParser) Accept([]byte) bool              { return true }
func (failingParser) ParseLong([]byte) (int64, error) { return 0, errBadTerm }

func TestParseErrorIsNotCached(t *testing.T) {
	_, r := openTestReader(t, valueDocs()...)
	defer r.DecRef()
	c := New(nil)
	_, err := c.Longs(r.Leaves()[0].Segment, "text", failingParser{})
	assert.ErrorIs(t, err, errBadTerm)
	assert.Zero(t, c.Entries())
}

func TestEntriesPurgedWhenCoreCloses(t *testing.T) {
	w, r := openTestReader(t, valueDocs()...)
	seg := r.Leaves()[0].Segment
	c := New(nil)
	_, err := c.Ints(seg, "num", nil)
	require.NoError(t, err)
	_, err = c.Strings(seg, "id")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Entries())

	// deleting every doc drops the segment from the writer, so the core
	// closes once the last reader lets go of it
	_, err = w.DeleteDocuments(index.NewTerm("id", "a"), index.NewTerm("id", "b"), index.NewTerm("id", "c"), index.NewTerm("id", "d"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Entries())
	require.NoError(t, r.DecRef())
	assert.Zero(t, c.Entries())
}
