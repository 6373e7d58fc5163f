// Package executor runs search API requests against the current searcher
// of an nrt.Manager: it parses the query language, optionally waits for an
// indexing generation, searches, and loads stored fields for the hits.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/nrt"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/dsl"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/tracing"
)

// Request is the body of a search call.
type Request struct {
	Query dsl.Node `json:"query"`
	// Filter restricts matches without scoring; CacheFilter shares its
	// per-segment result across requests.
	Filter      dsl.Node   `json:"filter,omitempty"`
	CacheFilter bool       `json:"cache_filter,omitempty"`
	Size        int        `json:"size,omitempty"`
	Sort        []SortSpec `json:"sort,omitempty"`
	// Fields lists stored fields to return with every hit.
	Fields []string `json:"fields,omitempty"`
	// MinGeneration waits until changes up to this indexing generation are
	// searchable.
	MinGeneration int64 `json:"min_generation,omitempty"`
}

// SortSpec is one sort criterion: Type is a search.SortType name.
type SortSpec struct {
	Field   string `json:"field,omitempty"`
	Type    string `json:"type"`
	Reverse bool   `json:"reverse,omitempty"`
}

// Hit is one result.
type Hit struct {
	Doc    int                 `json:"doc"`
	Score  float64             `json:"score"`
	Sort   []any               `json:"sort,omitempty"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// SearchResult is the response of a search call.
type SearchResult struct {
	Query     string  `json:"query"`
	TotalHits int     `json:"total_hits"`
	MaxScore  float64 `json:"max_score"`
	Hits      []Hit   `json:"hits"`
	// Version identifies the index snapshot that produced the result.
	Version int64 `json:"version"`
}

// ExplainRequest asks why doc scored as it did for Query.
type ExplainRequest struct {
	Query         dsl.Node `json:"query"`
	Doc           int      `json:"doc"`
	MinGeneration int64    `json:"min_generation,omitempty"`
}

// ExplainResult carries the explanation tree and its rendering.
type ExplainResult struct {
	Query       string              `json:"query"`
	Doc         int                 `json:"doc"`
	Match       bool                `json:"match"`
	Score       float64             `json:"score"`
	Explanation *search.Explanation `json:"explanation"`
	Text        string              `json:"text"`
}

// ResultCache memoizes search results per index snapshot.
type ResultCache interface {
	GetOrCompute(ctx context.Context, version int64, req *Request, compute func() (*SearchResult, error)) (*SearchResult, bool, error)
}

// Config bounds result sizes.
type Config struct {
	DefaultLimit int
	MaxResults   int
}

type Executor struct {
	manager *nrt.Manager
	loop    *nrt.ReopenLoop
	parser  *dsl.Parser
	cache   ResultCache
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns an executor. loop may be nil, in which case MinGeneration is
// rejected; cache may be nil to disable result caching.
func New(mgr *nrt.Manager, loop *nrt.ReopenLoop, parser *dsl.Parser, cache ResultCache, cfg Config, m *metrics.Metrics) *Executor {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 1000
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > cfg.MaxResults {
		cfg.DefaultLimit = min(10, cfg.MaxResults)
	}
	return &Executor{
		manager: mgr,
		loop:    loop,
		parser:  parser,
		cache:   cache,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

// Search runs req. The bool reports whether the result came from the cache.
func (e *Executor) Search(ctx context.Context, req *Request) (*SearchResult, bool, error) {
	size, err := e.size(req.Size)
	if err != nil {
		return nil, false, err
	}
	ctx, span := tracing.StartChild(ctx, "execute")
	defer span.End()
	if err := e.waitFor(ctx, req.MinGeneration); err != nil {
		return nil, false, err
	}
	s, err := e.manager.Acquire()
	if err != nil {
		return nil, false, err
	}
	defer e.manager.Release(s)

	compute := func() (*SearchResult, error) {
		return e.run(ctx, s, req, size)
	}
	var (
		res *SearchResult
		hit bool
	)
	if e.cache == nil {
		res, err = compute()
	} else {
		res, hit, err = e.cache.GetOrCompute(ctx, s.Reader().Version(), req, compute)
	}
	switch {
	case err != nil:
		e.metrics.SearchOutcome("error")
	case res.TotalHits == 0:
		e.metrics.SearchOutcome("zero_result")
	default:
		e.metrics.SearchOutcome("hit")
	}
	return res, hit, err
}

func (e *Executor) size(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, apperrors.Invalidf("size must not be negative, got %d", requested)
	case requested == 0:
		return e.cfg.DefaultLimit, nil
	case requested > e.cfg.MaxResults:
		return e.cfg.MaxResults, nil
	}
	return requested, nil
}

func (e *Executor) waitFor(ctx context.Context, gen int64) error {
	if gen <= 0 {
		return nil
	}
	_, span := tracing.StartChild(ctx, "wait_generation")
	defer span.End()
	span.SetAttr("generation", gen)
	if e.loop == nil {
		return apperrors.Invalidf("min_generation is not supported without a reopen loop")
	}
	if err := e.loop.WaitForGeneration(ctx, gen); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			e.logger.Warn("timed out waiting for generation", "generation", gen, "searching_generation", e.loop.SearchingGeneration())
			return fmt.Errorf("%w: waiting for generation %d", apperrors.ErrTimeout, gen)
		}
		return err
	}
	return nil
}

func (e *Executor) run(ctx context.Context, s *search.IndexSearcher, req *Request, size int) (*SearchResult, error) {
	_, span := tracing.StartChild(ctx, "parse")
	q, err := e.parser.Parse(req.Query)
	if err != nil {
		span.End()
		return nil, fmt.Errorf("query: %w", err)
	}
	var f search.Filter
	if len(req.Filter) > 0 {
		if f, err = e.parser.ParseFilter(req.Filter, req.CacheFilter); err != nil {
			span.End()
			return nil, fmt.Errorf("filter: %w", err)
		}
	}
	span.End()

	var sort search.Sort
	if len(req.Sort) > 0 {
		if sort, err = ParseSort(req.Sort); err != nil {
			return nil, err
		}
	}

	_, span = tracing.StartChild(ctx, "search")
	var td *search.TopDocs
	if len(req.Sort) > 0 {
		td, err = s.SearchSorted(q, f, size, sort)
	} else {
		td, err = s.Search(q, f, size)
	}
	span.End()
	if err != nil {
		return nil, err
	}
	span.SetAttr("total_hits", td.TotalHits)

	_, span = tracing.StartChild(ctx, "load_fields")
	defer span.End()

	res := &SearchResult{
		Query:     q.String(),
		TotalHits: td.TotalHits,
		MaxScore:  td.MaxScore,
		Hits:      make([]Hit, 0, len(td.ScoreDocs)),
		Version:   s.Reader().Version(),
	}
	for _, sd := range td.ScoreDocs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hit := Hit{Doc: sd.Doc, Score: sd.Score, Sort: sd.Fields}
		if len(req.Fields) > 0 {
			stored, err := s.Doc(sd.Doc)
			if err != nil {
				return nil, fmt.Errorf("loading doc %d: %w", sd.Doc, err)
			}
			hit.Fields = make(map[string][]string, len(req.Fields))
			for _, name := range req.Fields {
				if vs, ok := stored[name]; ok {
					hit.Fields[name] = vs
				}
			}
		}
		res.Hits = append(res.Hits, hit)
	}
	logger.FromContext(ctx).Debug("query executed",
		"query", res.Query,
		"total_hits", res.TotalHits,
		"returned", len(res.Hits),
		"version", res.Version,
	)
	return res, nil
}

// ParseSort converts API sort criteria to a search.Sort.
func ParseSort(specs []SortSpec) (search.Sort, error) {
	fields := make([]search.SortField, 0, len(specs))
	for i, spec := range specs {
		t, err := search.ParseSortType(spec.Type)
		if err != nil {
			return search.Sort{}, fmt.Errorf("sort %d: %w", i, err)
		}
		fields = append(fields, search.SortField{Field: spec.Field, Type: t, Reverse: spec.Reverse})
	}
	return search.NewSort(fields...), nil
}

// Explain describes how req.Doc scores against req.Query. Explanations are
// never cached.
func (e *Executor) Explain(ctx context.Context, req *ExplainRequest) (*ExplainResult, error) {
	if err := e.waitFor(ctx, req.MinGeneration); err != nil {
		return nil, err
	}
	q, err := e.parser.Parse(req.Query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	s, err := e.manager.Acquire()
	if err != nil {
		return nil, err
	}
	defer e.manager.Release(s)

	expl, err := s.Explain(q, req.Doc)
	if err != nil {
		return nil, err
	}
	return &ExplainResult{
		Query:       q.String(),
		Doc:         req.Doc,
		Match:       expl.Match,
		Score:       expl.Value,
		Explanation: expl,
		Text:        expl.String(),
	}, nil
}

// CacheKey returns the canonical form of req used to identify equal
// requests: nodes are compacted so formatting does not matter.
func CacheKey(req *Request) ([]byte, error) {
	canon := *req
	canon.MinGeneration = 0
	var err error
	if canon.Query, err = compact(req.Query); err != nil {
		return nil, err
	}
	if canon.Filter, err = compact(req.Filter); err != nil {
		return nil, err
	}
	return json.Marshal(canon)
}

func compact(node dsl.Node) (dsl.Node, error) {
	if len(node) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(node))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apperrors.Invalidf("malformed node: %v", err)
	}
	// Marshal sorts object keys.
	return json.Marshal(v)
}
