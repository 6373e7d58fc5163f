package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// maxRecent caps the ?recent= parameter.
const maxRecent = 500

// RecentSource returns the latest logged searches, newest first.
type RecentSource interface {
	Recent(ctx context.Context, limit int) ([]SearchEvent, error)
}

type Handler struct {
	aggregator *Aggregator
	recent     RecentSource
	logger     *slog.Logger
}

// NewHandler serves stats from aggregator. recent may be nil when no query
// log is configured.
func NewHandler(aggregator *Aggregator, recent RecentSource) *Handler {
	return &Handler{
		aggregator: aggregator,
		recent:     recent,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

type statsResponse struct {
	AggregatedStats
	Recent []SearchEvent `json:"recent,omitempty"`
}

// Stats serves GET /api/v1/analytics. With ?recent=N it also returns the N
// latest entries of the query log.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{AggregatedStats: h.aggregator.Stats()}

	if v := r.URL.Query().Get("recent"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRecent {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "recent must be an integer between 1 and " + strconv.Itoa(maxRecent),
			})
			return
		}
		if h.recent == nil {
			h.writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "query log is not enabled"})
			return
		}
		events, err := h.recent.Recent(r.Context(), n)
		if err != nil {
			h.logger.Error("loading recent queries failed", "error", err)
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "query log unavailable"})
			return
		}
		resp.Recent = events
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
