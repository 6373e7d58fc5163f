package query

import (
	"slices"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
)

// openReader indexes each batch of docs as its own segment.
func openReader(t *testing.T, batches ...[]*index.Document) *index.Reader {
	t.Helper()
	w, err := index.OpenWriter(index.WriterConfig{Analyzer: analysis.Whitespace{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	for _, batch := range batches {
		for _, d := range batch {
			_, err := w.AddDocument(d)
			require.NoError(t, err)
		}
		require.NoError(t, w.Flush())
	}
	r, err := index.OpenReader(w)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.DecRef() })
	return r
}

func newSearcher(r *index.Reader) *search.IndexSearcher {
	cfg := search.DefaultConfig()
	cfg.Concurrency = 1
	return search.NewIndexSearcher(r, cfg)
}

// textDocs builds one doc per body with an id, a constant all:all field and
// a whitespace-analyzed data field. An empty body omits the data field.
func textDocs(bodies ...string) []*index.Document {
	docs := make([]*index.Document, len(bodies))
	for i, body := range bodies {
		d := index.NewDocument(
			index.NewStringField("id", strconv.Itoa(i), true),
			index.NewStringField("all", "all", false),
		)
		if body != "" {
			d.Add(index.NewTextField("data", body, false))
		}
		docs[i] = d
	}
	return docs
}

func hitIDs(td *search.TopDocs) []int {
	ids := make([]int, len(td.ScoreDocs))
	for i, sd := range td.ScoreDocs {
		ids[i] = sd.Doc
	}
	slices.Sort(ids)
	return ids
}

func searchAll(t *testing.T, s *search.IndexSearcher, q search.Query) *search.TopDocs {
	t.Helper()
	td, err := s.Search(q, nil, 1000)
	require.NoError(t, err)
	return td
}

// requireExplainMatchesScore checks that every hit explains to its score.
func requireExplainMatchesScore(t *testing.T, s *search.IndexSearcher, q search.Query) {
	t.Helper()
	td := searchAll(t, s, q)
	require.NotEmpty(t, td.ScoreDocs, "query %s has no hits", q)
	for _, sd := range td.ScoreDocs {
		e, err := s.Explain(q, sd.Doc)
		require.NoError(t, err)
		require.True(t, e.Match, "doc %d of %s:\n%s", sd.Doc, q, e)
		require.InDelta(t, sd.Score, e.Value, 1e-9, "doc %d of %s:\n%s", sd.Doc, q, e)
	}
}

func term(field, text string) index.Term { return index.NewTerm(field, text) }

func tq(field, text string) *TermQuery { return NewTermQuery(term(field, text)) }
