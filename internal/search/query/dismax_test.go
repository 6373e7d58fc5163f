package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
)

func elephantSearcher(t *testing.T) *search.IndexSearcher {
	doc := func(hed, dek string) *index.Document {
		return index.NewDocument(
			index.NewTextField("hed", hed, false),
			index.NewTextField("dek", dek, false),
		)
	}
	return newSearcher(openReader(t, []*index.Document{
		doc("elephant", "elephant"),
		doc("elephant", "albino"),
		doc("albino", "elephant"),
		doc("albino", "albino"),
	}))
}

func scoresByDoc(t *testing.T, s *search.IndexSearcher, q search.Query) map[int]float64 {
	t.Helper()
	out := make(map[int]float64)
	for _, sd := range searchAll(t, s, q).ScoreDocs {
		out[sd.Doc] = sd.Score
	}
	return out
}

func TestDisjunctionMaxEqualScores(t *testing.T) {
	s := elephantSearcher(t)
	q := NewDisjunctionMaxQuery(0, tq("hed", "elephant"), tq("dek", "elephant"))

	scores := scoresByDoc(t, s, q)
	require.Len(t, scores, 3)
	assert.InDelta(t, scores[0], scores[1], 1e-12)
	assert.InDelta(t, scores[0], scores[2], 1e-12)
}

func TestDisjunctionMaxTieBreaker(t *testing.T) {
	s := elephantSearcher(t)
	q := NewDisjunctionMaxQuery(0.5, tq("hed", "elephant"), tq("dek", "elephant"))

	scores := scoresByDoc(t, s, q)
	require.Len(t, scores, 3)
	assert.InDelta(t, 1.5*scores[1], scores[0], 1e-12)
	assert.InDelta(t, scores[1], scores[2], 1e-12)
	assert.Equal(t, "(hed:elephant | dek:elephant)~0.5", q.String())
}

func TestDisjunctionMaxCountsAsOneClause(t *testing.T) {
	s := elephantSearcher(t)
	q := NewBooleanQuery(false).
		Add(NewDisjunctionMaxQuery(0, tq("hed", "elephant"), tq("dek", "elephant")), Should).
		Add(tq("hed", "albino"), Should)

	e, err := s.Explain(q, 0)
	require.NoError(t, err)
	require.True(t, e.Match)
	require.Len(t, e.Details, 2)
	assert.Equal(t, "coord(1/2)", e.Details[1].Description)

	requireExplainMatchesScore(t, s, q)
}

func TestDisjunctionMaxExplain(t *testing.T) {
	s := elephantSearcher(t)
	q := NewDisjunctionMaxQuery(0.3, tq("hed", "elephant"), tq("dek", "elephant"))
	requireExplainMatchesScore(t, s, q)

	e, err := s.Explain(q, 3)
	require.NoError(t, err)
	assert.False(t, e.Match)
	assert.Equal(t, "No matching clause", e.Description)
}

func TestDisjunctionMaxRewriteSingle(t *testing.T) {
	s := elephantSearcher(t)
	q := NewDisjunctionMaxQuery(0.1, tq("hed", "elephant"))
	q.SetBoost(2)
	rq, err := s.Rewrite(q)
	require.NoError(t, err)
	require.IsType(t, &TermQuery{}, rq)
	assert.Equal(t, 2.0, rq.Boost())
}
