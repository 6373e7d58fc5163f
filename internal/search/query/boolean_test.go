package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

var minShouldMatchBodies = []string{
	"A 1 2 3 4 5 6",
	"Z 4 5 6",
	"",
	"B 2 4 5 6",
	"Y 3 5 6",
	"",
	"C 3 6",
	"X 4 5 6",
}

func minShouldMatchSearcher(t *testing.T) *search.IndexSearcher {
	docs := textDocs(minShouldMatchBodies...)
	return newSearcher(openReader(t, docs[:4], docs[4:]))
}

func allWithOptional(msm int, values ...string) *BooleanQuery {
	q := NewBooleanQuery(false).Add(tq("all", "all"), Must)
	for _, v := range values {
		q.Add(tq("data", v), Should)
	}
	q.SetMinimumShouldMatch(msm)
	return q
}

func TestBooleanMinimumShouldMatch(t *testing.T) {
	s := minShouldMatchSearcher(t)

	td := searchAll(t, s, allWithOptional(2, "5", "4", "3"))
	assert.Equal(t, 5, td.TotalHits)
	assert.Equal(t, []int{0, 1, 3, 4, 7}, hitIDs(td))

	td = searchAll(t, s, allWithOptional(90, "5", "4", "3"))
	assert.Equal(t, 0, td.TotalHits)
	assert.Empty(t, td.ScoreDocs)
	assert.Zero(t, td.MaxScore)
}

func TestBooleanMinimumShouldMatchWithoutRequired(t *testing.T) {
	s := minShouldMatchSearcher(t)
	q := NewBooleanQuery(false)
	for _, v := range []string{"1", "2", "3", "4"} {
		q.Add(tq("data", v), Should)
	}
	q.SetMinimumShouldMatch(3)
	assert.Equal(t, []int{0}, hitIDs(searchAll(t, s, q)))

	q.SetMinimumShouldMatch(2)
	assert.Equal(t, []int{0, 3}, hitIDs(searchAll(t, s, q)))
}

func TestBooleanProhibited(t *testing.T) {
	s := minShouldMatchSearcher(t)
	q := NewBooleanQuery(false).
		Add(tq("all", "all"), Must).
		Add(tq("data", "5"), MustNot)
	assert.Equal(t, []int{2, 5, 6}, hitIDs(searchAll(t, s, q)))

	onlyNegative := NewBooleanQuery(false).Add(tq("data", "5"), MustNot)
	assert.Zero(t, searchAll(t, s, onlyNegative).TotalHits)
}

func TestBooleanRequiredClauseMissingFromSegment(t *testing.T) {
	s := minShouldMatchSearcher(t)
	// "a" only occurs in the first segment.
	q := NewBooleanQuery(false).
		Add(tq("data", "a"), Must).
		Add(tq("data", "6"), Must)
	assert.Equal(t, []int{0}, hitIDs(searchAll(t, s, q)))
}

func TestBooleanCoord(t *testing.T) {
	s := minShouldMatchSearcher(t)
	withCoord := NewBooleanQuery(false).Add(tq("data", "5"), Should).Add(tq("data", "3"), Should)
	noCoord := NewBooleanQuery(true).Add(tq("data", "5"), Should).Add(tq("data", "3"), Should)

	scores := func(q search.Query) map[int]float64 {
		out := make(map[int]float64)
		for _, sd := range searchAll(t, s, q).ScoreDocs {
			out[sd.Doc] = sd.Score
		}
		return out
	}
	with, without := scores(withCoord), scores(noCoord)
	require.Len(t, with, 6)
	// doc 0 and 4 match both clauses, doc 1 only one of two.
	assert.InDelta(t, without[0], with[0], 1e-12)
	assert.InDelta(t, without[4], with[4], 1e-12)
	assert.InDelta(t, without[1]/2, with[1], 1e-12)
	assert.InDelta(t, without[6]/2, with[6], 1e-12)
}

func TestBooleanTooManyClauses(t *testing.T) {
	r := openReader(t, textDocs(minShouldMatchBodies...))
	cfg := search.DefaultConfig()
	cfg.MaxClauseCount = 2
	s := search.NewIndexSearcher(r, cfg)

	q := NewBooleanQuery(false).
		Add(tq("data", "1"), Should).
		Add(tq("data", "2"), Should).
		Add(tq("data", "3"), Should)
	_, err := s.Search(q, nil, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTooManyClauses))
	assert.Equal(t, 422, apperrors.HTTPStatusCode(err))
}

func TestBooleanRewriteSingleClause(t *testing.T) {
	r := openReader(t, textDocs(minShouldMatchBodies...))
	inner := tq("data", "5")
	q := NewBooleanQuery(false).Add(inner, Should)
	q.SetBoost(3)

	rq, err := newSearcher(r).Rewrite(q)
	require.NoError(t, err)
	rewritten, ok := rq.(*TermQuery)
	require.True(t, ok, "got %T", rq)
	assert.Equal(t, 3.0, rewritten.Boost())
	assert.Equal(t, 1.0, inner.Boost(), "the original clause is left untouched")

	prohibited := NewBooleanQuery(false).Add(inner, MustNot)
	rq, err = prohibited.Rewrite(newSearcher(r))
	require.NoError(t, err)
	assert.Same(t, prohibited, rq)
}

func TestBooleanString(t *testing.T) {
	assert.Equal(t, "(+all:all data:5 data:4 data:3)~2", allWithOptional(2, "5", "4", "3").String())

	nested := NewBooleanQuery(false).
		Add(tq("f", "a"), Must).
		Add(NewBooleanQuery(false).Add(tq("f", "b"), Should).Add(tq("f", "c"), Should), MustNot)
	nested.SetBoost(2)
	assert.Equal(t, "(+f:a -(f:b f:c))^2", nested.String())
}

func TestParseOccur(t *testing.T) {
	for in, want := range map[string]Occur{"must": Must, "SHOULD": Should, "must_not": MustNot} {
		got, err := ParseOccur(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseOccur("sometimes")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestBooleanExplain(t *testing.T) {
	s := minShouldMatchSearcher(t)
	requireExplainMatchesScore(t, s, allWithOptional(2, "5", "4", "3"))
	requireExplainMatchesScore(t, s, NewBooleanQuery(false).Add(tq("data", "5"), Should).Add(tq("data", "3"), Should))

	e, err := s.Explain(allWithOptional(2, "5", "4", "3"), 6)
	require.NoError(t, err)
	assert.False(t, e.Match)
	assert.Equal(t, "Failure to match minimum number of optional clauses: 2", e.Description)

	e, err = s.Explain(NewBooleanQuery(false).Add(tq("data", "a"), Must), 1)
	require.NoError(t, err)
	assert.False(t, e.Match)
}

func TestBooleanMinimumShouldMatchWithoutOptional(t *testing.T) {
	s := minShouldMatchSearcher(t)
	q := NewBooleanQuery(false).
		Add(tq("all", "all"), Must).
		Add(tq("data", "5"), Must)
	require.Equal(t, 5, searchAll(t, s, q).TotalHits)

	q.SetMinimumShouldMatch(1)
	td := searchAll(t, s, q)
	assert.Zero(t, td.TotalHits)
	assert.Empty(t, td.ScoreDocs)
}

func TestBooleanWithoutClauses(t *testing.T) {
	s := minShouldMatchSearcher(t)
	td := searchAll(t, s, NewBooleanQuery(false))
	assert.Zero(t, td.TotalHits)
	assert.Empty(t, td.ScoreDocs)
}

// requireSubsetWithSameScores checks that every hit of narrow is a hit of
// wide with the same score.
func requireSubsetWithSameScores(t *testing.T, s *search.IndexSearcher, wide, narrow search.Query) {
	t.Helper()
	wideScores := make(map[int]float64)
	for _, sd := range searchAll(t, s, wide).ScoreDocs {
		wideScores[sd.Doc] = sd.Score
	}
	td := searchAll(t, s, narrow)
	require.NotEmpty(t, td.ScoreDocs, "%s has no hits", narrow)
	for _, sd := range td.ScoreDocs {
		want, ok := wideScores[sd.Doc]
		require.True(t, ok, "doc %d matches %s but not %s", sd.Doc, narrow, wide)
		assert.InDelta(t, want, sd.Score, 1e-9, "doc %d", sd.Doc)
	}
}

func TestBooleanConstraintsKeepScores(t *testing.T) {
	coords := map[string]search.Similarity{
		"default":       search.DefaultSimilarity{},
		"partial coord": search.CoordFunc{Similarity: search.DefaultSimilarity{}, Fn: func(overlap, maxOverlap int) float64 { return float64(overlap) / float64(maxOverlap+1) }},
	}
	optional := func() *BooleanQuery {
		q := NewBooleanQuery(false)
		for _, v := range []string{"5", "4", "3"} {
			q.Add(tq("data", v), Should)
		}
		return q
	}
	for name, sim := range coords {
		t.Run(name, func(t *testing.T) {
			s := minShouldMatchSearcher(t)
			s.SetSimilarity(sim)

			threshold := optional()
			threshold.SetMinimumShouldMatch(2)
			requireSubsetWithSameScores(t, s, optional(), threshold)
			assert.Equal(t, []int{0, 1, 3, 4, 7}, hitIDs(searchAll(t, s, threshold)))

			single := optional()
			single.SetMinimumShouldMatch(1)
			requireSubsetWithSameScores(t, s, optional(), single)
			assert.Equal(t, searchAll(t, s, optional()).TotalHits, searchAll(t, s, single).TotalHits)

			negated := optional().Add(tq("data", "1"), MustNot)
			requireSubsetWithSameScores(t, s, optional(), negated)
			assert.NotContains(t, hitIDs(searchAll(t, s, negated)), 0)

			requireExplainMatchesScore(t, s, threshold)
			requireExplainMatchesScore(t, s, negated)
		})
	}
}
