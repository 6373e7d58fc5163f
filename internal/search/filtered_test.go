package search_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

// usage counts how a filter set was consumed.
type usage struct {
	next, advance, get int
}

type countingIterator struct {
	search.DocIdSetIterator
	u *usage
}

func (c *countingIterator) NextDoc() int {
	c.u.next++
	return c.DocIdSetIterator.NextDoc()
}

func (c *countingIterator) Advance(target int) int {
	c.u.advance++
	return c.DocIdSetIterator.Advance(target)
}

type countingBits struct {
	index.Bits
	u *usage
}

func (c countingBits) Get(doc int) bool {
	c.u.get++
	return c.Bits.Get(doc)
}

// countingSet wraps a bit set, optionally hiding its random access.
type countingSet struct {
	inner  *search.BitDocIdSet
	random bool
	u      *usage
}

func (s *countingSet) Iterator() search.DocIdSetIterator {
	it := s.inner.Iterator()
	if it == nil {
		return nil
	}
	return &countingIterator{DocIdSetIterator: it, u: s.u}
}

func (s *countingSet) Bits() index.Bits {
	if !s.random {
		return nil
	}
	return countingBits{Bits: s.inner, u: s.u}
}

func (s *countingSet) IsCacheable() bool { return false }

// multiplesOf keeps live docs whose reader-global id is a multiple of k.
func multiplesOf(k int, random bool, u *usage) search.Filter {
	return search.FilterFunc(func(leaf *index.LeafContext, acceptDocs index.Bits) (search.DocIdSet, error) {
		maxDoc := leaf.Segment.MaxDoc()
		set := search.NewBitDocIdSet(maxDoc)
		for doc := 0; doc < maxDoc; doc++ {
			if (leaf.DocBase+doc)%k == 0 && (acceptDocs == nil || acceptDocs.Get(doc)) {
				set.Set(doc)
			}
		}
		return &countingSet{inner: set, random: random, u: u}, nil
	})
}

func filteredSearch(t *testing.T, s *search.IndexSearcher, strategy search.FilterStrategy, f search.Filter) *search.TopDocs {
	t.Helper()
	fq, err := search.NewFilteredQuery(termQuery("body", "even"), f, strategy)
	require.NoError(t, err)
	td, err := s.Search(fq, nil, 1000)
	require.NoError(t, err)
	return td
}

func expectedMultiplesOfSix(n int) []int {
	var out []int
	for i := 0; i < n; i += 6 {
		out = append(out, i)
	}
	return out
}

func TestFilterStrategiesAgree(t *testing.T) {
	w := openWriter(t)
	parityDocs(t, w, 300, 0)
	s := sequential(openReader(t, w))

	unfiltered, err := s.Search(termQuery("body", "even"), nil, 1000)
	require.NoError(t, err)
	scores := make(map[int]float64)
	for _, sd := range unfiltered.ScoreDocs {
		scores[sd.Doc] = sd.Score
	}

	strategies := []search.FilterStrategy{
		search.DefaultFilterStrategy,
		search.RandomAccessFilterStrategy{UseRandomAccess: func(index.Bits, int) bool { return false }},
		search.LeapFrogQueryFirstStrategy,
		search.LeapFrogFilterFirstStrategy,
		search.QueryFirstFilterStrategy,
	}
	for _, strategy := range strategies {
		for _, random := range []bool{true, false} {
			td := filteredSearch(t, s, strategy, multiplesOf(3, random, &usage{}))
			assert.Equal(t, expectedMultiplesOfSix(300), docIDs(td), "%s random=%v", strategy, random)
			assert.Equal(t, 50, td.TotalHits)
			for _, sd := range td.ScoreDocs {
				assert.InDelta(t, scores[sd.Doc], sd.Score, 1e-12, "filtering must not change scores")
			}
		}
	}
}

func TestLeapFrogOnlyAdvancesSecondary(t *testing.T) {
	w := openWriter(t)
	parityDocs(t, w, 300, 0)
	s := sequential(openReader(t, w))

	var u usage
	filteredSearch(t, s, search.LeapFrogQueryFirstStrategy, multiplesOf(3, true, &u))
	assert.Zero(t, u.next, "the filter follows the query and is only advanced")
	assert.Positive(t, u.advance)
	assert.Zero(t, u.get)

	u = usage{}
	filteredSearch(t, s, search.LeapFrogFilterFirstStrategy, multiplesOf(3, true, &u))
	assert.Positive(t, u.next, "the filter leads")
	assert.Zero(t, u.get)
}

func TestQueryFirstUsesBits(t *testing.T) {
	w := openWriter(t)
	parityDocs(t, w, 300, 0)
	s := sequential(openReader(t, w))

	var u usage
	filteredSearch(t, s, search.QueryFirstFilterStrategy, multiplesOf(3, true, &u))
	assert.Positive(t, u.get)
	assert.Zero(t, u.next)
	assert.Zero(t, u.advance)

	u = usage{}
	filteredSearch(t, s, search.QueryFirstFilterStrategy, multiplesOf(3, false, &u))
	assert.Zero(t, u.get)
	assert.Zero(t, u.next, "without bits it falls back to a query-first leapfrog")
	assert.Positive(t, u.advance)
}

func TestRandomAccessStrategy(t *testing.T) {
	w := openWriter(t)
	parityDocs(t, w, 300, 0)
	s := sequential(openReader(t, w))

	var u usage
	filteredSearch(t, s, search.DefaultFilterStrategy, multiplesOf(3, true, &u))
	assert.Equal(t, 1, u.next, "only the first filter doc is read before pushing bits down")
	assert.Positive(t, u.get)

	// A first filter doc at or past the threshold selects the leapfrog.
	u = usage{}
	strategy := search.RandomAccessFilterStrategy{Threshold: 1}
	td := filteredSearch(t, s, strategy, search.FilterFunc(func(leaf *index.LeafContext, acceptDocs index.Bits) (search.DocIdSet, error) {
		set, err := multiplesOf(3, true, &u).DocIdSet(leaf, acceptDocs)
		if err != nil {
			return nil, err
		}
		set.(*countingSet).inner.Bitmap().Remove(0)
		return set, nil
	}))
	assert.Zero(t, u.get)
	assert.Positive(t, u.next)
	assert.Equal(t, expectedMultiplesOfSix(300)[1:], docIDs(td))
}

func TestFilteredQueryHonorsDeletions(t *testing.T) {
	w := openWriter(t)
	parityDocs(t, w, 60, 25)
	_, err := w.DeleteDocuments(index.NewTerm("id", "0"), index.NewTerm("id", "30"))
	require.NoError(t, err)
	s := sequential(openReader(t, w))

	want := []int{6, 12, 18, 24, 36, 42, 48, 54}
	for _, strategy := range []search.FilterStrategy{
		search.DefaultFilterStrategy,
		search.LeapFrogQueryFirstStrategy,
		search.LeapFrogFilterFirstStrategy,
		search.QueryFirstFilterStrategy,
	} {
		td := filteredSearch(t, s, strategy, multiplesOf(3, true, &usage{}))
		assert.Equal(t, want, docIDs(td), "%s", strategy)
	}
}

func TestFilteredQueryNoFilterDocs(t *testing.T) {
	w := openWriter(t)
	parityDocs(t, w, 20, 0)
	s := sequential(openReader(t, w))

	none := search.FilterFunc(func(*index.LeafContext, index.Bits) (search.DocIdSet, error) { return nil, nil })
	empty := search.FilterFunc(func(*index.LeafContext, index.Bits) (search.DocIdSet, error) {
		return search.EmptyDocIdSet, nil
	})
	for _, f := range []search.Filter{none, empty} {
		td := filteredSearch(t, s, search.DefaultFilterStrategy, f)
		assert.Zero(t, td.TotalHits)
	}
}

func TestSearchWithFilterArgument(t *testing.T) {
	w := openWriter(t)
	parityDocs(t, w, 60, 0)
	s := sequential(openReader(t, w))

	f := search.NewQueryWrapperFilter(termQuery("body", "odd"))
	td, err := s.Search(termQuery("body", "all"), f, 100)
	require.NoError(t, err)
	assert.Equal(t, 30, td.TotalHits)
	for _, sd := range td.ScoreDocs {
		assert.Equal(t, 1, sd.Doc%2)
	}
}

func TestNewFilteredQueryValidation(t *testing.T) {
	f := multiplesOf(2, true, &usage{})
	_, err := search.NewFilteredQuery(nil, f, nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
	_, err = search.NewFilteredQuery(termQuery("body", "even"), nil, nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	fq, err := search.NewFilteredQuery(termQuery("body", "even"), f, nil)
	require.NoError(t, err)
	assert.Equal(t, search.DefaultFilterStrategy, fq.Strategy())
	fq.SetBoost(2)
	assert.Equal(t, "filtered(body:even)->FilterFunc^2", fq.String())
}

func TestFilteredQueryExplain(t *testing.T) {
	w := openWriter(t)
	parityDocs(t, w, 30, 10)
	s := sequential(openReader(t, w))

	fq, err := search.NewFilteredQuery(termQuery("body", "even"), multiplesOf(3, true, &usage{}), nil)
	require.NoError(t, err)
	td, err := s.Search(fq, nil, 100)
	require.NoError(t, err)
	require.NotEmpty(t, td.ScoreDocs)
	for _, sd := range td.ScoreDocs {
		e, err := s.Explain(fq, sd.Doc)
		require.NoError(t, err)
		assert.True(t, e.Match)
		assert.InDelta(t, sd.Score, e.Value, 1e-9)
	}

	// doc 2 matches the query but not the filter
	e, err := s.Explain(fq, 2)
	require.NoError(t, err)
	assert.False(t, e.Match)
	assert.Equal(t, "failure to match filter: FilterFunc", e.Description)
	require.Len(t, e.Details, 1)
	assert.True(t, e.Details[0].Match)
}
