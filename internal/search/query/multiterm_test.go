package query

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/numeric"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

// wordReader holds two segments; banana occurs in both.
func wordReader(t *testing.T) *index.Reader {
	docs := func(words ...string) []*index.Document {
		out := make([]*index.Document, len(words))
		for i, w := range words {
			out[i] = index.NewDocument(index.NewStringField("word", w, true))
		}
		return out
	}
	return openReader(t,
		docs("apple", "apricot", "banana", "blueberry"),
		docs("cherry", "date", "fig", "banana"),
	)
}

func TestTermRangeQuery(t *testing.T) {
	s := newSearcher(wordReader(t))
	cases := []struct {
		name         string
		lower, upper []byte
		incL, incU   bool
		want         []int
		str          string
	}{
		{"inclusive", []byte("banana"), []byte("date"), true, true, []int{2, 3, 4, 5, 7}, "word:[banana TO date]"},
		{"exclusive", []byte("banana"), []byte("date"), false, false, []int{3, 4}, "word:{banana TO date}"},
		{"open lower", nil, []byte("apricot"), true, true, []int{0, 1}, "word:[* TO apricot]"},
		{"open upper", []byte("date"), nil, true, false, []int{5, 6}, "word:[date TO *}"},
		{"both open", nil, nil, false, false, []int{0, 1, 2, 3, 4, 5, 6, 7}, "word:{* TO *}"},
		{"inverted", []byte("date"), []byte("banana"), true, true, []int{}, "word:[date TO banana]"},
		{"empty exclusive", []byte("fig"), []byte("fig"), true, false, []int{}, "word:[fig TO fig}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := NewTermRangeQuery("word", tc.lower, tc.upper, tc.incL, tc.incU)
			assert.Equal(t, tc.want, hitIDs(searchAll(t, s, q)))
			assert.Equal(t, tc.str, q.String())
		})
	}
}

func allRewriteMethods() map[string]RewriteMethod {
	return map[string]RewriteMethod{
		"filter":          ConstantScoreFilterRewrite,
		"boolean":         ConstantScoreBooleanRewrite,
		"scoring":         ScoringBooleanRewrite,
		"top terms":       TopTermsScoringBooleanRewrite(100),
		"top terms boost": TopTermsBoostOnlyBooleanRewrite(100),
		"auto":            DefaultRewrite,
		"auto boolean":    ConstantScoreAutoRewrite{TermCountCutoff: 1000, DocCountPercent: 100},
	}
}

func TestRewriteMethodsMatchSameDocs(t *testing.T) {
	s := newSearcher(wordReader(t))
	for name, m := range allRewriteMethods() {
		t.Run(name, func(t *testing.T) {
			queries := []MultiTermQuery{
				NewTermRangeQuery("word", []byte("banana"), []byte("date"), true, true),
				NewPrefixQuery(term("word", "b")),
				NewWildcardQuery(term("word", "*rr*")),
			}
			want := [][]int{{2, 3, 4, 5, 7}, {2, 3, 7}, {3, 4}}
			for i, q := range queries {
				q.SetRewriteMethod(m)
				assert.Equal(t, want[i], hitIDs(searchAll(t, s, q)), "%s", q)
				requireExplainMatchesScore(t, s, q)
			}
		})
	}
}

func TestConstantScoreRewritesScoreEqually(t *testing.T) {
	s := newSearcher(wordReader(t))
	for _, m := range []RewriteMethod{ConstantScoreFilterRewrite, ConstantScoreBooleanRewrite, DefaultRewrite} {
		q := NewPrefixQuery(term("word", "b"))
		q.SetRewriteMethod(m)
		q.SetBoost(2)
		for _, sd := range searchAll(t, s, q).ScoreDocs {
			assert.InDelta(t, 1.0, sd.Score, 1e-12, "%s with %s", q, m)
		}
	}
}

func TestConstantScoreAutoRewriteChoosesForm(t *testing.T) {
	s := newSearcher(wordReader(t))
	q := NewTermRangeQuery("word", []byte("banana"), []byte("date"), true, true)

	// A tiny index rounds the doc cutoff down to zero.
	rq, err := DefaultRewrite.Rewrite(s, q)
	require.NoError(t, err)
	csq, ok := rq.(*ConstantScoreQuery)
	require.True(t, ok)
	assert.NotNil(t, csq.Filter())

	rq, err = ConstantScoreAutoRewrite{TermCountCutoff: 1000, DocCountPercent: 100}.Rewrite(s, q)
	require.NoError(t, err)
	csq, ok = rq.(*ConstantScoreQuery)
	require.True(t, ok)
	bq, ok := csq.Query().(*BooleanQuery)
	require.True(t, ok)
	assert.Len(t, bq.Clauses(), 4, "banana is collected once across segments")

	rq, err = ConstantScoreAutoRewrite{TermCountCutoff: 2, DocCountPercent: 100}.Rewrite(s, q)
	require.NoError(t, err)
	assert.NotNil(t, rq.(*ConstantScoreQuery).Filter())
}

func TestTopTermsRewriteKeepsLowestTermsOnTies(t *testing.T) {
	r := wordReader(t)
	q := NewTermRangeQuery("word", []byte("banana"), []byte("date"), true, true)
	rq, err := TopTermsScoringBooleanRewrite(2).Rewrite(newSearcher(r), q)
	require.NoError(t, err)
	bq := rq.(*BooleanQuery)
	require.Len(t, bq.Clauses(), 2)
	assert.Equal(t, "banana", bq.Clauses()[0].Query.(*TermQuery).Term().Text)
	assert.Equal(t, "blueberry", bq.Clauses()[1].Query.(*TermQuery).Term().Text)
	assert.Equal(t, []int{2, 3, 7}, hitIDs(searchAll(t, newSearcher(r), rq)))
}

func TestRewritesStayWithinClauseLimit(t *testing.T) {
	var docs []*index.Document
	for _, w := range []string{"aa", "ab", "ac", "aa"} {
		docs = append(docs, index.NewDocument(index.NewStringField("w", w, false)))
	}
	r := openReader(t, docs[:2], docs[2:])
	cfg := search.DefaultConfig()
	cfg.Concurrency = 1
	cfg.MaxClauseCount = 2
	s := search.NewIndexSearcher(r, cfg)

	fuzzy, err := NewFuzzyQuery(term("w", "aa"), 1, 0)
	require.NoError(t, err)
	require.Equal(t, 3, CountTerms(r, fuzzy))
	rq, err := fuzzy.Rewrite(s)
	require.NoError(t, err)
	require.Len(t, rq.(*BooleanQuery).Clauses(), 2)
	// The exact term wins; ab beats ac on the tie.
	assert.Equal(t, []int{0, 1, 3}, hitIDs(searchAll(t, s, fuzzy)))

	boostOnly := NewPrefixQuery(term("w", "a"))
	boostOnly.SetRewriteMethod(TopTermsBoostOnlyBooleanRewrite(50))
	assert.Equal(t, 3, searchAll(t, s, boostOnly).TotalHits)

	auto := NewPrefixQuery(term("w", "a"))
	auto.SetRewriteMethod(ConstantScoreAutoRewrite{TermCountCutoff: 1000, DocCountPercent: 100})
	rq, err = auto.Rewrite(s)
	require.NoError(t, err)
	assert.NotNil(t, rq.(*ConstantScoreQuery).Filter(), "three terms exceed the clause limit")
	assert.Equal(t, 4, searchAll(t, s, auto).TotalHits)

	scoring := NewPrefixQuery(term("w", "a"))
	scoring.SetRewriteMethod(ScoringBooleanRewrite)
	_, err = s.Search(scoring, nil, 10)
	assert.ErrorIs(t, err, apperrors.ErrTooManyClauses)
}

func TestMultiTermQueryMustBeRewritten(t *testing.T) {
	s := newSearcher(wordReader(t))
	_, err := NewPrefixQuery(term("word", "a")).CreateWeight(s)
	assert.True(t, errors.Is(err, apperrors.ErrIllegalState))
}

func TestPrefixQuery(t *testing.T) {
	r := wordReader(t)
	s := newSearcher(r)
	assert.Equal(t, []int{0, 1}, hitIDs(searchAll(t, s, NewPrefixQuery(term("word", "ap")))))
	assert.Len(t, searchAll(t, s, NewPrefixQuery(term("word", ""))).ScoreDocs, 8)
	assert.Empty(t, searchAll(t, s, NewPrefixQuery(term("word", "zz"))).ScoreDocs)
	assert.Empty(t, searchAll(t, s, NewPrefixQuery(term("nofield", "a"))).ScoreDocs)

	assert.Equal(t, 2, CountTerms(r, NewPrefixQuery(term("word", "b"))))
	assert.Equal(t, "word:ap*", NewPrefixQuery(term("word", "ap")).String())
}

func TestWildcardQuery(t *testing.T) {
	s := newSearcher(wordReader(t))
	cases := map[string][]int{
		"b*":    {2, 3, 7},
		"*rr*":  {3, 4},
		"?ig":   {6},
		"ap?le": {0},
		"*":     {0, 1, 2, 3, 4, 5, 6, 7},
		`a\*`:   {},
		"date":  {5},
	}
	for pattern, want := range cases {
		q := NewWildcardQuery(term("word", pattern))
		assert.Equal(t, want, hitIDs(searchAll(t, s, q)), pattern)
	}
}

func TestFuzzyQuery(t *testing.T) {
	r := wordReader(t)
	s := newSearcher(r)
	fuzzy := func(text string, edits, prefix int) *FuzzyQuery {
		q, err := NewFuzzyQuery(term("word", text), edits, prefix)
		require.NoError(t, err)
		return q
	}

	assert.Equal(t, []int{0}, hitIDs(searchAll(t, s, fuzzy("aple", 1, 0))))
	assert.Equal(t, []int{5}, hitIDs(searchAll(t, s, fuzzy("datte", 1, 0))))
	assert.Equal(t, []int{6}, hitIDs(searchAll(t, s, fuzzy("fgi", 1, 0))), "a transposition is one edit")
	assert.Equal(t, []int{4}, hitIDs(searchAll(t, s, fuzzy("cherri", 1, 2))))
	assert.Empty(t, searchAll(t, s, fuzzy("xherry", 1, 1)).ScoreDocs)
	assert.Equal(t, []int{5}, hitIDs(searchAll(t, s, fuzzy("date", 0, 0))))
	requireExplainMatchesScore(t, s, fuzzy("aple", 1, 0))

	rq, err := fuzzy("aple", 1, 0).Rewrite(s)
	require.NoError(t, err)
	bq := rq.(*BooleanQuery)
	require.Len(t, bq.Clauses(), 1)
	assert.InDelta(t, 0.75, bq.Clauses()[0].Query.Boost(), 1e-12)

	assert.Equal(t, "word:aple~1", fuzzy("aple", 1, 0).String())
}

func TestFuzzyQueryValidation(t *testing.T) {
	_, err := NewFuzzyQuery(term("word", "a"), 3, 0)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
	_, err = NewFuzzyQuery(term("word", "a"), 1, -1)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	q, err := NewFuzzyQuery(term("word", "a"), 1, 0)
	require.NoError(t, err)
	assert.True(t, errors.Is(q.SetMaxExpansions(0), apperrors.ErrInvalidArgument))
	require.NoError(t, q.SetMaxExpansions(5))
	assert.Equal(t, "top_terms_5", q.RewriteMethod().String())
}

func numericReader(t *testing.T, n int) *index.Reader {
	docs := make([]*index.Document, n)
	for i := range docs {
		v := int64(i*7 - 3000)
		docs[i] = index.NewDocument(
			index.NewLongField("trie", v, 4, false),
			index.NewLongField("classic", v, numeric.PrecisionStepInfinite, false),
			index.NewIntField("int", int32(i-n/2), 8, false),
			index.NewDoubleField("double", float64(i)/4-10, 4, false),
		)
	}
	half := n / 2
	return openReader(t, docs[:half], docs[half:])
}

func ptr[T any](v T) *T { return &v }

func TestNumericRangeTrieVisitsFewerTerms(t *testing.T) {
	const n = 1000
	r := numericReader(t, n)
	s := newSearcher(r)

	want := 0
	for i := 0; i < n; i++ {
		if v := int64(i*7 - 3000); v >= -1000 && v <= 2500 {
			want++
		}
	}
	trie, err := NewLongRange("trie", 4, ptr(int64(-1000)), ptr(int64(2500)), true, true)
	require.NoError(t, err)
	classic, err := NewLongRange("classic", numeric.PrecisionStepInfinite, ptr(int64(-1000)), ptr(int64(2500)), true, true)
	require.NoError(t, err)

	for name, m := range allRewriteMethods() {
		if strings.HasPrefix(name, "top terms") {
			continue
		}
		trie.SetRewriteMethod(m)
		classic.SetRewriteMethod(m)
		assert.Equal(t, want, searchAll(t, s, trie).TotalHits, "%s", m)
		assert.Equal(t, hitIDs(searchAll(t, s, classic)), hitIDs(searchAll(t, s, trie)), "%s", m)
	}

	trieTerms, classicTerms := CountTerms(r, trie), CountTerms(r, classic)
	assert.Equal(t, want, classicTerms)
	assert.Less(t, trieTerms, classicTerms)
	assert.Equal(t, "trie:[-1000 TO 2500]", trie.String())
}

func TestNumericRangeBounds(t *testing.T) {
	r := numericReader(t, 20)
	s := newSearcher(r)
	count := func(q *NumericRangeQuery, err error) int {
		t.Helper()
		require.NoError(t, err)
		return searchAll(t, s, q).TotalHits
	}

	// int values run from -10 to 9.
	assert.Equal(t, 20, count(NewIntRange("int", 8, nil, nil, true, true)))
	assert.Equal(t, 3, count(NewIntRange("int", 8, ptr(int32(-1)), ptr(int32(1)), true, true)))
	assert.Equal(t, 1, count(NewIntRange("int", 8, ptr(int32(-1)), ptr(int32(1)), false, false)))
	assert.Equal(t, 10, count(NewIntRange("int", 8, ptr(int32(0)), nil, true, true)))
	assert.Equal(t, 0, count(NewIntRange("int", 8, ptr(int32(1)), ptr(int32(1)), true, false)))

	// double values run from -10 to -5.25 in steps of 0.25.
	assert.Equal(t, 5, count(NewDoubleRange("double", 4, ptr(-9.0), ptr(-8.0), true, true)))
	assert.Equal(t, 3, count(NewDoubleRange("double", 4, ptr(-9.0), ptr(-8.0), false, false)))
	assert.Equal(t, 20, count(NewDoubleRange("double", 4, nil, ptr(math.Inf(1)), true, true)))

	assert.Equal(t, 0, count(NewLongRange("trie", 4, ptr(int64(math.MaxInt64)), nil, false, true)))
	assert.Equal(t, 0, count(NewLongRange("trie", 4, nil, ptr(int64(math.MinInt64)), true, false)))
}

func TestNumericRangeInfiniteValues(t *testing.T) {
	nanPayloads := []uint64{0x7ff8000000000000, 0x7ff0000000000001, 0xfff0000000000001, 0xffffffffffffffff}
	values := []float64{math.Inf(-1), 0, math.Inf(1)}
	for _, bits := range nanPayloads {
		values = append(values, math.Float64frombits(bits))
	}
	docs := make([]*index.Document, len(values))
	for i, v := range values {
		docs[i] = index.NewDocument(
			index.NewDoubleField("d", v, 4, false),
			index.NewFloatField("f", float32(v), 4, false),
		)
	}
	s := newSearcher(openReader(t, docs[:3], docs[3:]))

	tests := []struct {
		name       string
		minV, maxV *float64
		incl       bool
		want       int
	}{
		{"open bounds inclusive", nil, nil, true, 7},
		{"open bounds exclusive", nil, nil, false, 7},
		{"infinities inclusive", ptr(math.Inf(-1)), ptr(math.Inf(1)), true, 3},
		{"infinities exclusive", ptr(math.Inf(-1)), ptr(math.Inf(1)), false, 1},
		{"up to +Inf", nil, ptr(math.Inf(1)), true, 3},
		{"from -Inf", ptr(math.Inf(-1)), nil, true, 7},
		{"above +Inf", ptr(math.Inf(1)), nil, false, 4},
		{"NaN only", ptr(math.NaN()), ptr(math.NaN()), true, 4},
		{"NaN by sign-bit payload", ptr(math.Float64frombits(0xfff0000000000001)), ptr(math.NaN()), true, 4},
		{"NaN exclusive", ptr(math.NaN()), ptr(math.NaN()), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dq, err := NewDoubleRange("d", 4, tt.minV, tt.maxV, tt.incl, tt.incl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, searchAll(t, s, dq).TotalHits, "double %s", dq)

			f32 := func(p *float64) *float32 {
				if p == nil {
					return nil
				}
				return ptr(float32(*p))
			}
			fq, err := NewFloatRange("f", 4, f32(tt.minV), f32(tt.maxV), tt.incl, tt.incl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, searchAll(t, s, fq).TotalHits, "float %s", fq)
		})
	}
}

func TestNumericRangeValidation(t *testing.T) {
	_, err := NewLongRange("trie", 0, nil, nil, true, true)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
	_, err = NewDoubleRange("double", -4, nil, nil, true, true)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestMultiTermFiltersHonorAcceptDocs(t *testing.T) {
	r := wordReader(t)
	leaf := r.Leaves()[0]
	f := NewTermRangeFilter("word", []byte("a"), []byte("c"), true, true)

	set, err := f.DocIdSet(leaf, index.MatchAllBits(leaf.Segment.MaxDoc()))
	require.NoError(t, err)
	assert.Equal(t, 4, set.(*search.BitDocIdSet).Cardinality())

	set, err = f.DocIdSet(leaf, index.MatchNoBits(leaf.Segment.MaxDoc()))
	require.NoError(t, err)
	assert.Nil(t, set.Iterator())

	set, err = NewPrefixFilter("nofield", "a").DocIdSet(leaf, nil)
	require.NoError(t, err)
	assert.Same(t, search.EmptyDocIdSet, set)

	q, err := NewLongRange("trie", 4, ptr(int64(0)), nil, true, true)
	require.NoError(t, err)
	nr := numericReader(t, 10)
	set, err = NewNumericRangeFilter(q).DocIdSet(nr.Leaves()[0], nil)
	require.NoError(t, err)
	assert.Same(t, search.EmptyDocIdSet, set, "the first segment holds only negative values")
}
