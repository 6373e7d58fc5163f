package search_test

import (
	"slices"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search/query"
)

func openWriter(t *testing.T) *index.Writer {
	t.Helper()
	w, err := index.OpenWriter(index.WriterConfig{Analyzer: analysis.Whitespace{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func openReader(t *testing.T, w *index.Writer) *index.Reader {
	t.Helper()
	r, err := index.OpenReader(w)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.DecRef() })
	return r
}

// parityDocs indexes n docs, flushing a new segment every per docs. The
// body field holds "even" or "odd" plus the constant word "all".
func parityDocs(t *testing.T, w *index.Writer, n, per int) {
	t.Helper()
	for i := 0; i < n; i++ {
		body := "odd all"
		if i%2 == 0 {
			body = "even all"
		}
		_, err := w.AddDocument(index.NewDocument(
			index.NewStringField("id", strconv.Itoa(i), true),
			index.NewTextField("body", body, false),
			index.NewIntField("num", int32(i), 4, false),
		))
		require.NoError(t, err)
		if per > 0 && (i+1)%per == 0 {
			require.NoError(t, w.Flush())
		}
	}
}

func sequential(r *index.Reader) *search.IndexSearcher {
	cfg := search.DefaultConfig()
	cfg.Concurrency = 1
	return search.NewIndexSearcher(r, cfg)
}

func termQuery(field, text string) *query.TermQuery {
	return query.NewTermQuery(index.NewTerm(field, text))
}

func docIDs(td *search.TopDocs) []int {
	ids := make([]int, len(td.ScoreDocs))
	for i, sd := range td.ScoreDocs {
		ids[i] = sd.Doc
	}
	slices.Sort(ids)
	return ids
}
