// Package handler exposes the search engine over HTTP: search and explain
// calls, plus stats and invalidation for the result and filter caches.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analytics"
	searchcache "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/tracing"
)

const maxBodyBytes = 1 << 20

type Searcher interface {
	Search(ctx context.Context, req *executor.Request) (*executor.SearchResult, bool, error)
	Explain(ctx context.Context, req *executor.ExplainRequest) (*executor.ExplainResult, error)
}

// ResultCache is implemented by *cache.QueryCache.
type ResultCache interface {
	Stats() cache.Stats
	Invalidate(ctx context.Context) (int64, error)
}

// FilterCache is implemented by *searchcache.Registry.
type FilterCache interface {
	Stats() []searchcache.FilterStats
	Clear() int
}

// Recorder receives one event per served request.
type Recorder interface {
	Record(event analytics.SearchEvent)
}

// Options holds the optional collaborators of a Handler. Leave a field nil
// to disable it.
type Options struct {
	Results  ResultCache
	Filters  FilterCache
	Tracker  *analytics.Collector
	QueryLog Recorder
}

type Handler struct {
	searcher Searcher
	opts     Options
	logger   *slog.Logger
}

func New(searcher Searcher, opts Options) *Handler {
	return &Handler{
		searcher: searcher,
		opts:     opts,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/explain", h.Explain)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type searchResponse struct {
	*executor.SearchResult
	TookMs   int64 `json:"took_ms"`
	CacheHit bool  `json:"cache_hit"`
	// Profile maps span paths to microseconds when ?profile=true.
	Profile map[string]int64 `json:"profile,omitempty"`
}

// Search serves POST /api/v1/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logger.FromContext(r.Context())
	ctx, span := tracing.Start(r.Context(), "search", logger.RequestID(r.Context()))

	var req executor.Request
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Query) == 0 {
		h.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, cacheHit, err := h.searcher.Search(ctx, &req)
	span.End()
	span.Log(log)
	latency := time.Since(start)
	event := analytics.SearchEvent{
		Query:     string(req.Query),
		Filter:    string(req.Filter),
		Sorted:    len(req.Sort) > 0,
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	}

	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("search failed",
			"query", event.Query,
			"error", err,
			"status_code", status,
		)
		event.Type = analytics.EventSearchFail
		event.Error = err.Error()
		h.record(event)
		h.writeAppError(w, status, "search failed", err)
		return
	}

	event.Type = analytics.EventSearch
	if result.TotalHits == 0 {
		event.Type = analytics.EventZeroResult
	}
	event.Query = result.Query
	event.TotalHits = result.TotalHits
	event.Returned = len(result.Hits)
	event.Version = result.Version
	h.record(event)

	log.Info("search completed",
		"query", result.Query,
		"total_hits", result.TotalHits,
		"returned", len(result.Hits),
		"cache_hit", cacheHit,
		"latency_ms", event.LatencyMs,
	)
	resp := searchResponse{
		SearchResult: result,
		TookMs:       event.LatencyMs,
		CacheHit:     cacheHit,
	}
	if r.URL.Query().Get("profile") == "true" {
		resp.Profile = span.Phases()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Explain serves POST /api/v1/explain.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req executor.ExplainRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Query) == 0 {
		h.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := h.searcher.Explain(ctx, &req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		logger.FromContext(ctx).Error("explain failed", "doc", req.Doc, "error", err, "status_code", status)
		h.writeAppError(w, status, "explain failed", err)
		return
	}
	if h.opts.Tracker != nil {
		h.opts.Tracker.Track(analytics.SearchEvent{
			Type:      analytics.EventExplain,
			Query:     result.Query,
			LatencyMs: time.Since(start).Milliseconds(),
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestID(ctx),
		})
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	if h.opts.Results != nil {
		stats := h.opts.Results.Stats()
		var hitRate float64
		if total := stats.Hits + stats.Misses; total > 0 {
			hitRate = float64(stats.Hits) / float64(total)
		}
		resp["results"] = map[string]any{
			"hits":     stats.Hits,
			"misses":   stats.Misses,
			"errors":   stats.Errors,
			"circuit":  stats.Circuit,
			"hit_rate": hitRate,
		}
	} else {
		resp["results"] = map[string]string{"status": "disabled"}
	}
	if h.opts.Filters != nil {
		resp["filters"] = h.opts.Filters.Stats()
	} else {
		resp["filters"] = []searchcache.FilterStats{}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "invalidated"}
	if h.opts.Filters != nil {
		resp["filters_cleared"] = h.opts.Filters.Clear()
	}
	if h.opts.Results != nil {
		deleted, err := h.opts.Results.Invalidate(r.Context())
		if err != nil {
			h.logger.Error("cache invalidation failed", "error", err)
			h.writeError(w, http.StatusServiceUnavailable, "result cache invalidation failed")
			return
		}
		resp["results_deleted"] = deleted
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) record(event analytics.SearchEvent) {
	if h.opts.Tracker != nil {
		h.opts.Tracker.Track(event)
	}
	if h.opts.QueryLog != nil {
		h.opts.QueryLog.Record(event)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

// writeAppError exposes the error text for client errors only.
func (h *Handler) writeAppError(w http.ResponseWriter, status int, message string, err error) {
	if status < http.StatusInternalServerError {
		message = err.Error()
	}
	h.writeError(w, status, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
