package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

func newParser() *Parser {
	return NewParser(analysis.Whitespace{}, cache.NewRegistry(8, nil), 4)
}

func TestParseQueryStrings(t *testing.T) {
	cases := []struct {
		name string
		node string
		want string
	}{
		{"match_all", `{"match_all": {}}`, "*:*"},
		{"term", `{"term": {"field": "body", "value": "Fox"}}`, "body:Fox"},
		{"term boost", `{"term": {"field": "body", "value": "fox", "boost": 2}}`, "body:fox^2"},
		{"match or", `{"match": {"field": "body", "text": "Quick FOX quick"}}`, "body:quick body:fox"},
		{"match and", `{"match": {"field": "body", "text": "quick fox", "operator": "and"}}`, "+body:quick +body:fox"},
		{"match msm", `{"match": {"field": "body", "text": "a b c", "minimum_should_match": 2}}`, "(body:a body:b body:c)~2"},
		{"bool", `{"bool": {"must": [{"term": {"field": "f", "value": "a"}}],
			"must_not": [{"bool": {"should": [{"term": {"field": "f", "value": "b"}}, {"term": {"field": "f", "value": "c"}}]}}],
			"boost": 2}}`, "(+f:a -(f:b f:c))^2"},
		{"dis_max", `{"dis_max": {"queries": [{"term": {"field": "hed", "value": "x"}}, {"term": {"field": "dek", "value": "x"}}], "tie_breaker": 0.5}}`, "(hed:x | dek:x)~0.5"},
		{"phrase", `{"phrase": {"field": "data", "text": "quick fox", "slop": 3}}`, `data:"quick fox"~3`},
		{"range", `{"range": {"field": "word", "from": "a", "to": "c", "include_upper": false}}`, "word:[a TO c}"},
		{"range open", `{"range": {"field": "word", "to": "c"}}`, "word:[* TO c]"},
		{"numeric long", `{"numeric_range": {"field": "trie", "min": -1000, "max": 2500}}`, "trie:[-1000 TO 2500]"},
		{"numeric int open", `{"numeric_range": {"field": "n", "type": "int", "max": 7, "include_max": false}}`, "n:[* TO 7}"},
		{"numeric double", `{"numeric_range": {"field": "d", "type": "double", "min": 0.5}}`, "d:[0.5 TO *]"},
		{"numeric float", `{"numeric_range": {"field": "d", "type": "float", "min": 1.5, "max": 2}}`, "d:[1.5 TO 2]"},
		{"prefix", `{"prefix": {"field": "word", "value": "ap"}}`, "word:ap*"},
		{"wildcard", `{"wildcard": {"field": "word", "value": "a?p*"}}`, "word:a?p*"},
		{"fuzzy", `{"fuzzy": {"field": "word", "value": "aple", "max_edits": 1}}`, "word:aple~1"},
		{"constant_score", `{"constant_score": {"query": {"term": {"field": "data", "value": "a"}}, "boost": 3}}`, "ConstantScore(data:a)^3"},
		{"constant_score filter", `{"constant_score": {"filter": {"term": {"field": "data", "value": "a"}}}}`, "ConstantScore(QueryWrapperFilter(data:a))"},
		{"filtered", `{"filtered": {"filter": {"prefix": {"field": "w", "value": "a"}}}}`, "filtered(*:*)->w:a*"},
	}
	p := newParser()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := p.Parse(Node(tc.node))
			require.NoError(t, err)
			assert.Equal(t, tc.want, q.String())
		})
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"empty":              ``,
		"not object":         `[1]`,
		"two keys":           `{"term": {}, "match": {}}`,
		"unknown type":       `{"regexp": {"field": "f", "value": "a.*"}}`,
		"unknown key":        `{"term": {"field": "f", "value": "a", "bogus": 1}}`,
		"missing field":      `{"term": {"value": "a"}}`,
		"negative boost":     `{"term": {"field": "f", "value": "a", "boost": -1}}`,
		"bad operator":       `{"match": {"field": "f", "text": "a", "operator": "xor"}}`,
		"no tokens":          `{"match": {"field": "f", "text": "   "}}`,
		"and with msm":       `{"match": {"field": "f", "text": "a b", "operator": "and", "minimum_should_match": 1}}`,
		"negative msm":       `{"bool": {"should": [{"match_all": {}}], "minimum_should_match": -1}}`,
		"bad clause":         `{"bool": {"must": [{"nope": {}}]}}`,
		"empty dis_max":      `{"dis_max": {"queries": []}}`,
		"tie breaker":        `{"dis_max": {"queries": [{"match_all": {}}], "tie_breaker": 2}}`,
		"negative slop":      `{"phrase": {"field": "f", "text": "a b", "slop": -1}}`,
		"int bound overflow": `{"numeric_range": {"field": "n", "type": "int", "min": 3000000000}}`,
		"fractional long":    `{"numeric_range": {"field": "n", "min": 1.5}}`,
		"numeric type":       `{"numeric_range": {"field": "n", "type": "decimal"}}`,
		"bad step":           `{"numeric_range": {"field": "n", "min": 1, "precision_step": -2}}`,
		"bad rewrite":        `{"prefix": {"field": "f", "value": "a", "rewrite": "magic"}}`,
		"bad top terms":      `{"prefix": {"field": "f", "value": "a", "rewrite": "top_terms_0"}}`,
		"fuzzy edits":        `{"fuzzy": {"field": "f", "value": "abc", "max_edits": 3}}`,
		"both":               `{"constant_score": {"query": {"match_all": {}}, "filter": {"match_all": {}}}}`,
		"neither":            `{"constant_score": {}}`,
		"cache on query":     `{"constant_score": {"query": {"match_all": {}}, "cache": true}}`,
		"filtered no filter": `{"filtered": {"query": {"match_all": {}}}}`,
		"bad strategy":       `{"filtered": {"filter": {"match_all": {}}, "strategy": "sideways"}}`,
	}
	p := newParser()
	for name, node := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Parse(Node(node))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
		})
	}
}

func TestParseRewrite(t *testing.T) {
	for _, name := range []string{"constant_score_filter", "constant_score_boolean", "scoring_boolean", "top_terms_5", "top_terms_boost_3"} {
		m, err := ParseRewrite(name)
		require.NoError(t, err)
		assert.Equal(t, name, m.String())
	}
	m, err := ParseRewrite("CONSTANT_SCORE_AUTO")
	require.NoError(t, err)
	assert.Equal(t, query.DefaultRewrite, m)

	q, err := newParser().Parse(Node(`{"wildcard": {"field": "f", "value": "a*", "rewrite": "top_terms_5"}}`))
	require.NoError(t, err)
	assert.Equal(t, "top_terms_5", q.(query.MultiTermQuery).RewriteMethod().String())
}

func TestParseStrategy(t *testing.T) {
	cases := map[string]string{
		"":                       "random_access",
		"random_access":          "random_access",
		"leap_frog":              "leap_frog_filter_first",
		"leap_frog_filter_first": "leap_frog_filter_first",
		"leap_frog_query_first":  "leap_frog_query_first",
		"query_first":            "query_first",
	}
	for name, want := range cases {
		s, err := ParseStrategy(name)
		require.NoError(t, err)
		assert.Equal(t, want, s.String())
	}
}

func TestParseFilter(t *testing.T) {
	p := newParser()

	f, err := p.ParseFilter(Node(`{"prefix": {"field": "w", "value": "a"}}`), false)
	require.NoError(t, err)
	assert.IsType(t, &query.MultiTermQueryWrapperFilter{}, f)

	f, err = p.ParseFilter(Node(`{"term": {"field": "w", "value": "a"}}`), false)
	require.NoError(t, err)
	assert.IsType(t, &search.QueryWrapperFilter{}, f)

	first, err := p.ParseFilter(Node(`{"term": {"field": "w", "value": "a"}}`), true)
	require.NoError(t, err)
	second, err := p.ParseFilter(Node(`{"term":{"field":"w","value":"a"}}`), true)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.IsType(t, &cache.CachingWrapperFilter{}, first)
}

func TestParseFilterWithoutRegistry(t *testing.T) {
	p := NewParser(nil, nil, 4)
	f, err := p.ParseFilter(Node(`{"term": {"field": "w", "value": "a"}}`), true)
	require.NoError(t, err)
	assert.IsType(t, &search.QueryWrapperFilter{}, f)
}

func TestQueryTypesSorted(t *testing.T) {
	types := QueryTypes()
	assert.Contains(t, types, "numeric_range")
	assert.IsNonDecreasing(t, types)
}

func TestTuningAppliesToAutoRewrite(t *testing.T) {
	p := newParser().WithTuning(Tuning{AutoRewriteTermCount: 5, AutoRewriteDocPercent: 2, RandomAccessThreshold: 10})

	q, err := p.Parse(Node(`{"prefix": {"field": "w", "value": "ap"}}`))
	require.NoError(t, err)
	assert.Equal(t, query.ConstantScoreAutoRewrite{TermCountCutoff: 5, DocCountPercent: 2},
		q.(query.MultiTermQuery).RewriteMethod())

	q, err = p.Parse(Node(`{"prefix": {"field": "w", "value": "ap", "rewrite": "scoring_boolean"}}`))
	require.NoError(t, err)
	assert.Equal(t, query.ScoringBooleanRewrite, q.(query.MultiTermQuery).RewriteMethod())

	_, err = p.Parse(Node(`{"filtered": {"filter": {"prefix": {"field": "w", "value": "a"}}}}`))
	require.NoError(t, err)
}
