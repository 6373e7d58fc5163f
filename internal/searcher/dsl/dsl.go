// Package dsl turns the JSON query language of the search API into query
// trees. Every node is an object with exactly one key naming its type:
//
//	{"bool": {"must": [{"term": {"field": "body", "value": "fox"}}],
//	          "should": [...], "must_not": [...], "minimum_should_match": 1}}
//
// Text given to "match" and "phrase" is analyzed with the index analyzer;
// "term", "prefix", "wildcard" and "fuzzy" values are used verbatim.
package dsl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
)

// Parser builds queries and filters from JSON nodes.
type Parser struct {
	analyzer analysis.Analyzer
	// filters is nil when filter caching is disabled; "cache": true is then
	// ignored.
	filters       *cache.Registry
	precisionStep int
	tuning        Tuning
}

// Tuning overrides the engine defaults of the auto rewrite and the
// random-access filter strategy. Zero fields keep the defaults.
type Tuning struct {
	AutoRewriteTermCount  int
	AutoRewriteDocPercent float64
	RandomAccessThreshold int
}

// WithTuning sets the heuristics used by queries that do not choose a
// rewrite method or filter strategy themselves.
func (p *Parser) WithTuning(t Tuning) *Parser {
	p.tuning = t
	return p
}

// NewParser returns a parser analyzing text with a. filters may be nil.
// precisionStep is the default for numeric ranges that do not name one.
func NewParser(a analysis.Analyzer, filters *cache.Registry, precisionStep int) *Parser {
	if a == nil {
		a = analysis.Standard{}
	}
	return &Parser{analyzer: a, filters: filters, precisionStep: precisionStep}
}

// Node is a raw query or filter node.
type Node = json.RawMessage

type parseFunc func(p *Parser, body json.RawMessage) (search.Query, error)

var queryParsers map[string]parseFunc

func init() {
	queryParsers = map[string]parseFunc{
		"match_all":      (*Parser).matchAll,
		"term":           (*Parser).term,
		"match":          (*Parser).match,
		"bool":           (*Parser).boolean,
		"dis_max":        (*Parser).disMax,
		"phrase":         (*Parser).phrase,
		"range":          (*Parser).termRange,
		"numeric_range":  (*Parser).numericRange,
		"prefix":         (*Parser).prefix,
		"wildcard":       (*Parser).wildcard,
		"fuzzy":          (*Parser).fuzzy,
		"constant_score": (*Parser).constantScore,
		"filtered":       (*Parser).filtered,
	}
}

// QueryTypes lists the node names Parse accepts.
func QueryTypes() []string {
	names := make([]string, 0, len(queryParsers))
	for name := range queryParsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse builds the query described by node.
func (p *Parser) Parse(node Node) (search.Query, error) {
	name, body, err := unwrap(node)
	if err != nil {
		return nil, err
	}
	fn, ok := queryParsers[name]
	if !ok {
		return nil, apperrors.Invalidf("unknown query type %q, expected one of %s", name, strings.Join(QueryTypes(), ", "))
	}
	q, err := fn(p, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return q, nil
}

// ParseFilter builds a filter from a query node. Multi-term nodes become
// term-expanding filters, the rest match what the query matches. With
// cache set the filter is shared through the registry.
func (p *Parser) ParseFilter(node Node, cached bool) (search.Filter, error) {
	q, err := p.Parse(node)
	if err != nil {
		return nil, err
	}
	var f search.Filter
	if mtq, ok := q.(query.MultiTermQuery); ok {
		f = query.NewMultiTermQueryWrapperFilter(mtq)
	} else {
		f = search.NewQueryWrapperFilter(q)
	}
	if cached && p.filters != nil {
		return p.filters.Get(f), nil
	}
	return f, nil
}

// unwrap splits {"type": {...}} into its name and body.
func unwrap(node Node) (string, json.RawMessage, error) {
	if len(bytes.TrimSpace(node)) == 0 {
		return "", nil, apperrors.Invalidf("query node is empty")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(node, &obj); err != nil {
		return "", nil, apperrors.Invalidf("query node must be an object: %v", err)
	}
	if len(obj) != 1 {
		return "", nil, apperrors.Invalidf("query node must have exactly one key, got %d", len(obj))
	}
	var name string
	for k := range obj {
		name = k
	}
	return name, obj[name], nil
}

// decode unmarshals body into v, rejecting unknown keys.
func decode(body json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return apperrors.Invalidf("%v", err)
	}
	return nil
}

func requireField(field string) error {
	if field == "" {
		return apperrors.Invalidf("field is required")
	}
	return nil
}

// boosted applies boost to q when set.
func boosted(q search.Query, boost *float64) (search.Query, error) {
	if boost == nil {
		return q, nil
	}
	if *boost < 0 {
		return nil, apperrors.Invalidf("boost must not be negative, got %v", *boost)
	}
	q.SetBoost(*boost)
	return q, nil
}

type matchAllNode struct {
	Boost *float64 `json:"boost"`
}

func (p *Parser) matchAll(body json.RawMessage) (search.Query, error) {
	var n matchAllNode
	if err := decode(body, &n); err != nil {
		return nil, err
	}
	return boosted(query.NewMatchAllDocsQuery(), n.Boost)
}

type termNode struct {
	Field string   `json:"field"`
	Value string   `json:"value"`
	Boost *float64 `json:"boost"`
}

func (p *Parser) term(body json.RawMessage) (search.Query, error) {
	var n termNode
	if err := decode(body, &n); err != nil {
		return nil, err
	}
	if err := requireField(n.Field); err != nil {
		return nil, err
	}
	return boosted(query.NewTermQuery(index.NewTerm(n.Field, n.Value)), n.Boost)
}

type matchNode struct {
	Field string `json:"field"`
	Text  string `json:"text"`
	// Operator is "or" (default) or "and".
	Operator           string   `json:"operator"`
	MinimumShouldMatch int      `json:"minimum_should_match"`
	Boost              *float64 `json:"boost"`
}

// match analyzes text and combines the tokens in a boolean query.
func (p *Parser) match(body json.RawMessage) (search.Query, error) {
	var n matchNode
	if err := decode(body, &n); err != nil {
		return nil, err
	}
	if err := requireField(n.Field); err != nil {
		return nil, err
	}
	occur := query.Should
	switch strings.ToLower(n.Operator) {
	case "", "or":
	case "and":
		occur = query.Must
	default:
		return nil, apperrors.Invalidf("operator must be \"and\" or \"or\", got %q", n.Operator)
	}
	tokens := p.analyzer.Analyze(n.Text)
	if len(tokens) == 0 {
		return nil, apperrors.Invalidf("text %q has no searchable terms", n.Text)
	}
	bq := query.NewBooleanQuery(false)
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if _, dup := seen[tok.Term]; dup {
			continue
		}
		seen[tok.Term] = struct{}{}
		bq.Add(query.NewTermQuery(index.NewTerm(n.Field, tok.Term)), occur)
	}
	if n.MinimumShouldMatch != 0 {
		if occur == query.Must {
			return nil, apperrors.Invalidf("minimum_should_match needs operator \"or\"")
		}
		bq.SetMinimumShouldMatch(n.MinimumShouldMatch)
	}
	return boosted(bq, n.Boost)
}

type boolNode struct {
	Must               []Node   `json:"must"`
	Should             []Node   `json:"should"`
	MustNot            []Node   `json:"must_not"`
	MinimumShouldMatch int      `json:"minimum_should_match"`
	DisableCoord       bool     `json:"disable_coord"`
	Boost              *float64 `json:"boost"`
}

func (p *Parser) boolean(body json.RawMessage) (search.Query, error) {
	var n boolNode
	if err := decode(body, &n); err != nil {
		return nil, err
	}
	bq := query.NewBooleanQuery(n.DisableCoord)
	for _, group := range []struct {
		nodes []Node
		occur query.Occur
	}{{n.Must, query.Must}, {n.Should, query.Should}, {n.MustNot, query.MustNot}} {
		for i, node := range group.nodes {
			sub, err := p.Parse(node)
			if err != nil {
				return nil, fmt.Errorf("clause %d: %w", i, err)
			}
			bq.Add(sub, group.occur)
		}
	}
	if n.MinimumShouldMatch < 0 {
		return nil, apperrors.Invalidf("minimum_should_match must not be negative, got %d", n.MinimumShouldMatch)
	}
	bq.SetMinimumShouldMatch(n.MinimumShouldMatch)
	return boosted(bq, n.Boost)
}

type disMaxNode struct {
	Queries    []Node   `json:"queries"`
	TieBreaker float64  `json:"tie_breaker"`
	Boost      *float64 `json:"boost"`
}

func (p *Parser) disMax(body json.RawMessage) (search.Query, error) {
	var n disMaxNode
	if err := decode(body, &n); err != nil {
		return nil, err
	}
	if len(n.Queries) == 0 {
		return nil, apperrors.Invalidf("queries must not be empty")
	}
	if n.TieBreaker < 0 || n.TieBreaker > 1 {
		return nil, apperrors.Invalidf("tie_breaker must be within [0, 1], got %v", n.TieBreaker)
	}
	dq := query.NewDisjunctionMaxQuery(n.TieBreaker)
	for i, node := range n.Queries {
		sub, err := p.Parse(node)
		if err != nil {
			return nil, fmt.Errorf("disjunct %d: %w", i, err)
		}
		dq.Add(sub)
	}
	return boosted(dq, n.Boost)
}

type phraseNode struct {
	Field string   `json:"field"`
	Text  string   `json:"text"`
	Slop  int      `json:"slop"`
	Boost *float64 `json:"boost"`
}

// phrase keeps the analyzer's token positions so removed stop-words leave
// gaps in the phrase.
func (p *Parser) phrase(body json.RawMessage) (search.Query, error) {
	var n phraseNode
	if err := decode(body, &n); err != nil {
		return nil, err
	}
	if err := requireField(n.Field); err != nil {
		return nil, err
	}
	tokens := p.analyzer.Analyze(n.Text)
	if len(tokens) == 0 {
		return nil, apperrors.Invalidf("text %q has no searchable terms", n.Text)
	}
	pq := query.NewPhraseQuery()
	for _, tok := range tokens {
		if err := pq.AddAt(index.NewTerm(n.Field, tok.Term), tok.Position); err != nil {
			return nil, err
		}
	}
	if err := pq.SetSlop(n.Slop); err != nil {
		return nil, err
	}
	return boosted(pq, n.Boost)
}

type rangeNode struct {
	Field        string   `json:"field"`
	From         *string  `json:"from"`
	To           *string  `json:"to"`
	IncludeLower *bool    `json:"include_lower"`
	IncludeUpper *bool    `json:"include_upper"`
	Rewrite      string   `json:"rewrite"`
	Boost        *float64 `json:"boost"`
}

// termRange bounds are inclusive unless stated otherwise; an absent bound
// is open.
func (p *Parser) termRange(body json.RawMessage) (search.Query, error) {
	var n rangeNode
	if err := decode(body, &n); err != nil {
		return nil, err
	}
	if err := requireField(n.Field); err != nil {
		return nil, err
	}
	var lower, upper []byte
	if n.From != nil {
		lower = []byte(*n.From)
	}
	if n.To != nil {
		upper = []byte(*n.To)
	}
	q := query.NewTermRangeQuery(n.Field, lower, upper, orTrue(n.IncludeLower), orTrue(n.IncludeUpper))
	if err := p.applyRewrite(q, n.Rewrite); err != nil {
		return nil, err
	}
	return boosted(q, n.Boost)
}

func orTrue(b *bool) bool { return b == nil || *b }

type numericRangeNode struct {
	Field string `json:"field"`
	// Type is "long" (default), "int", "float" or "double".
	Type          string      `json:"type"`
	PrecisionStep int         `json:"precision_step"`
	Min           json.Number `json:"min"`
	Max           json.Number `json:"max"`
	IncludeMin    *bool       `json:"include_min"`
	IncludeMax    *bool       `json:"include_max"`
	Rewrite       string      `json:"rewrite"`
	Boost         *float64    `json:"boost"`
}

func (p *Parser) numericRange(body json.RawMessage) (search.Query, error) {
	var n numericRangeNode
	if err := decode(body, &n); err != nil {
		return nil, err
	}
	if err := requireField(n.Field); err != nil {
		return nil, err
	}
	step := n.PrecisionStep
	if step == 0 {
		step = p.precisionStep
	}
	minInc, maxInc := orTrue(n.IncludeMin), orTrue(n.IncludeMax)
	var (
		q   *query.NumericRangeQuery
		err error
	)
	switch strings.ToLower(n.Type) {
	case "", "long":
		var lo, hi *int64
		if lo, err = parseBound(n.Min, parseInt64); err == nil {
			if hi, err = parseBound(n.Max, parseInt64); err == nil {
				q, err = query.NewLongRange(n.Field, step, lo, hi, minInc, maxInc)
			}
		}
	case "int":
		var lo, hi *int32
		if lo, err = parseBound(n.Min, parseInt32); err == nil {
			if hi, err = parseBound(n.Max, parseInt32); err == nil {
				q, err = query.NewIntRange(n.Field, step, lo, hi, minInc, maxInc)
			}
		}
	case "double":
		var lo, hi *float64
		if lo, err = parseBound(n.Min, parseFloat64); err == nil {
			if hi, err = parseBound(n.Max, parseFloat64); err == nil {
				q, err = query.NewDoubleRange(n.Field, step, lo, hi, minInc, maxInc)
			}
		}
	case "float":
		var lo, hi *float32
		if lo, err = parseBound(n.Min, parseFloat32); err == nil {
			if hi, err = parseBound(n.Max, parseFloat32); err == nil {
				q, err = query.NewFloatRange(n.Field, step, lo, hi, minInc, maxInc)
			}
		}
	default:
		return nil, apperrors.Invalidf("unknown numeric type %q", n.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := p.applyRewrite(q, n.Rewrite); err != nil {
		return nil, err
	}
	return boosted(q, n.Boost)
}

// parseBound returns nil for an absent bound.
func parseBound[T any](v json.Number, parse func(string) (T, error)) (*T, error) {
	if v == "" {
		return nil, nil
	}
	t, err := parse(v.String())
	if err != nil {
		return nil, apperrors.Invalidf("bad numeric bound %q: %v", v, err)
	}
	return &t, nil
}

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	return int32(v), err
}

func parseFloat64(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func parseFloat32(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	return float32(v), err
}

type patternNode struct {
	Field   string   `json:"field"`
	Value   string   `json:"value"`
	Rewrite string   `json:"rewrite"`
	Boost   *float64 `json:"boost"`
}

func (p *Parser) pattern(body json.RawMessage, build func(index.Term) query.MultiTermQuery) (search.Query, error) {
	var n patternNode
	if err := decode(body, &n); err != nil {
		return nil, err
	}
	if err := requireField(n.Field); err != nil {
		return nil, err
	}
	q := build(index.NewTerm(n.Field, n.Value))
	if err := p.applyRewrite(q, n.Rewrite); err != nil {
		return nil, err
	}
	return boosted(q, n.Boost)
}

func (p *Parser) prefix(body json.RawMessage) (search.Query, error) {
	return p.pattern(body, func(t index.Term) query.MultiTermQuery { return query.NewPrefixQuery(t) })
}

func (p *Parser) wildcard(body json.RawMessage) (search.Query, error) {
	return p.pattern(body, func(t index.Term) query.MultiTermQuery { return query.NewWildcardQuery(t) })
}

type fuzzyNode struct {
	Field         string   `json:"field"`
	Value         string   `json:"value"`
	MaxEdits      *int     `json:"max_edits"`
	PrefixLength  int      `json:"prefix_length"`
	MaxExpansions int      `json:"max_expansions"`
	Rewrite       string   `json:"rewrite"`
	Boost         *float64 `json:"boost"`
}

func (p *Parser) fuzzy(body json.RawMessage) (search.Query, error) {
	var n fuzzyNode
	if err := decode(body, &n); err != nil {
		return nil, err
	}
	if err := requireField(n.Field); err != nil {
		return nil, err
	}
	edits := query.MaxEdits
	if n.MaxEdits != nil {
		edits = *n.MaxEdits
	}
	q, err := query.NewFuzzyQuery(index.NewTerm(n.Field, n.Value), edits, n.PrefixLength)
	if err != nil {
		return nil, err
	}
	if n.MaxExpansions != 0 {
		if err := q.SetMaxExpansions(n.MaxExpansions); err != nil {
			return nil, err
		}
	}
	if err := p.applyRewrite(q, n.Rewrite); err != nil {
		return nil, err
	}
	return boosted(q, n.Boost)
}

type constantScoreNode struct {
	Query  Node     `json:"query"`
	Filter Node     `json:"filter"`
	Cache  bool     `json:"cache"`
	Boost  *float64 `json:"boost"`
}

// constantScore wraps either a query or a filter, never both.
func (p *Parser) constantScore(body json.RawMessage) (search.Query, error) {
	var n constantScoreNode
	if err := decode(body, &n); err != nil {
		return nil, err
	}
	switch {
	case n.Query != nil && n.Filter != nil:
		return nil, apperrors.Invalidf("set either query or filter, not both")
	case n.Query != nil:
		if n.Cache {
			return nil, apperrors.Invalidf("cache applies to filter only")
		}
		inner, err := p.Parse(n.Query)
		if err != nil {
			return nil, err
		}
		return boosted(query.NewConstantScoreQuery(inner), n.Boost)
	case n.Filter != nil:
		f, err := p.ParseFilter(n.Filter, n.Cache)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		return boosted(query.NewConstantScoreFilterQuery(f), n.Boost)
	}
	return nil, apperrors.Invalidf("query or filter is required")
}

type filteredNode struct {
	Query    Node     `json:"query"`
	Filter   Node     `json:"filter"`
	Strategy string   `json:"strategy"`
	Cache    bool     `json:"cache"`
	Boost    *float64 `json:"boost"`
}

// filtered defaults to match_all when no query is given.
func (p *Parser) filtered(body json.RawMessage) (search.Query, error) {
	var n filteredNode
	if err := decode(body, &n); err != nil {
		return nil, err
	}
	if n.Filter == nil {
		return nil, apperrors.Invalidf("filter is required")
	}
	var inner search.Query = query.NewMatchAllDocsQuery()
	if n.Query != nil {
		var err error
		if inner, err = p.Parse(n.Query); err != nil {
			return nil, err
		}
	}
	f, err := p.ParseFilter(n.Filter, n.Cache)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	strategy, err := ParseStrategy(n.Strategy)
	if err != nil {
		return nil, err
	}
	if ra, ok := strategy.(search.RandomAccessFilterStrategy); ok && ra.Threshold == 0 {
		ra.Threshold = p.tuning.RandomAccessThreshold
		strategy = ra
	}
	fq, err := search.NewFilteredQuery(inner, f, strategy)
	if err != nil {
		return nil, err
	}
	return boosted(fq, n.Boost)
}

// ParseStrategy maps a strategy name to a FilterStrategy. "" selects the
// default random-access strategy.
func ParseStrategy(name string) (search.FilterStrategy, error) {
	switch strings.ToLower(name) {
	case "", "random_access":
		return search.DefaultFilterStrategy, nil
	case "leap_frog_query_first":
		return search.LeapFrogQueryFirstStrategy, nil
	case "leap_frog_filter_first", "leap_frog":
		return search.LeapFrogFilterFirstStrategy, nil
	case "query_first":
		return search.QueryFirstFilterStrategy, nil
	}
	return nil, apperrors.Invalidf("unknown filter strategy %q", name)
}

// ParseRewrite maps a rewrite method name to a RewriteMethod:
// constant_score_auto, constant_score_filter, constant_score_boolean,
// scoring_boolean, top_terms_N and top_terms_boost_N.
func ParseRewrite(name string) (query.RewriteMethod, error) {
	switch name := strings.ToLower(name); {
	case name == "constant_score_auto":
		return query.DefaultRewrite, nil
	case name == "constant_score_filter":
		return query.ConstantScoreFilterRewrite, nil
	case name == "constant_score_boolean":
		return query.ConstantScoreBooleanRewrite, nil
	case name == "scoring_boolean":
		return query.ScoringBooleanRewrite, nil
	case strings.HasPrefix(name, "top_terms_boost_"):
		n, err := strconv.Atoi(strings.TrimPrefix(name, "top_terms_boost_"))
		if err != nil || n < 1 {
			return nil, apperrors.Invalidf("bad top terms size in %q", name)
		}
		return query.TopTermsBoostOnlyBooleanRewrite(n), nil
	case strings.HasPrefix(name, "top_terms_"):
		n, err := strconv.Atoi(strings.TrimPrefix(name, "top_terms_"))
		if err != nil || n < 1 {
			return nil, apperrors.Invalidf("bad top terms size in %q", name)
		}
		return query.TopTermsScoringBooleanRewrite(n), nil
	}
	return nil, apperrors.Invalidf("unknown rewrite method %q", name)
}

func (p *Parser) applyRewrite(q query.MultiTermQuery, name string) error {
	m := q.RewriteMethod()
	if name != "" {
		var err error
		if m, err = ParseRewrite(name); err != nil {
			return err
		}
	}
	if auto, ok := m.(query.ConstantScoreAutoRewrite); ok {
		if p.tuning.AutoRewriteTermCount > 0 {
			auto.TermCountCutoff = p.tuning.AutoRewriteTermCount
		}
		if p.tuning.AutoRewriteDocPercent > 0 {
			auto.DocCountPercent = p.tuning.AutoRewriteDocPercent
		}
		m = auto
	}
	q.SetRewriteMethod(m)
	return nil
}
