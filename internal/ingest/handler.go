package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/logger"
)

const maxBodyBytes = 8 << 20

// Publisher sends one event; *kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Handler struct {
	applier   *Applier
	publisher Publisher
	logger    *slog.Logger
}

// NewHandler returns the document endpoint. With a publisher, events are
// validated and queued on Kafka; without one they are applied directly.
func NewHandler(applier *Applier, publisher Publisher) *Handler {
	return &Handler{
		applier:   applier,
		publisher: publisher,
		logger:    slog.Default().With("component", "ingest-handler"),
	}
}

// Ingest serves POST /api/v1/documents.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	var event DocumentEvent
	if err := dec.Decode(&event); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if h.publisher != nil {
		if err := Validate(&event); err != nil {
			h.writeValidation(w, err)
			return
		}
		if err := h.publisher.Publish(ctx, kafka.Event{Key: event.ID, Value: event}); err != nil {
			log.Error("publishing document event failed", "doc_id", event.ID, "error", err)
			h.writeError(w, http.StatusServiceUnavailable, "ingestion failed")
			return
		}
		log.Info("document event queued", "doc_id", event.ID, "op", event.Op)
		h.writeJSON(w, http.StatusAccepted, Result{ID: event.ID, Op: event.Op, Status: "accepted"})
		return
	}

	res, err := h.applier.Apply(ctx, &event)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			h.writeValidation(w, err)
			return
		}
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("document event applied",
		"doc_id", res.ID,
		"op", res.Op,
		"generation", res.Generation,
	)
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
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
