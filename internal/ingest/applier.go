package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/logger"
)

// Indexer is the part of *index.Writer the applier mutates.
type Indexer interface {
	UpdateDocument(t index.Term, doc *index.Document) (int64, error)
	DeleteDocuments(terms ...index.Term) (int64, error)
}

// Applier applies validated document events to an index writer.
type Applier struct {
	writer        Indexer
	precisionStep int
	logger        *slog.Logger
}

func NewApplier(writer Indexer, precisionStep int) *Applier {
	return &Applier{
		writer:        writer,
		precisionStep: precisionStep,
		logger:        slog.Default().With("component", "ingest-applier"),
	}
}

// Apply validates e and mutates the index. The returned generation becomes
// searchable once the reopen loop reaches it.
func (a *Applier) Apply(ctx context.Context, e *DocumentEvent) (*Result, error) {
	if err := Validate(e); err != nil {
		return nil, err
	}
	idTerm := index.NewTerm(IDField, e.ID)

	var (
		gen int64
		err error
	)
	switch e.Op {
	case OpUpsert:
		doc, derr := ToDocument(e, a.precisionStep)
		if derr != nil {
			return nil, derr
		}
		gen, err = a.writer.UpdateDocument(idTerm, doc)
	case OpDelete:
		gen, err = a.writer.DeleteDocuments(idTerm)
	}
	if err != nil {
		return nil, fmt.Errorf("applying %s of %s: %w", e.Op, e.ID, err)
	}

	logger.FromContext(ctx).Debug("document event applied",
		"doc_id", e.ID,
		"op", e.Op,
		"generation", gen,
	)
	return &Result{ID: e.ID, Op: e.Op, Status: "applied", Generation: gen}, nil
}

// HandleMessage returns a Kafka MessageHandler applying each ingest event.
// Undecodable or invalid events are skipped so they do not block the
// partition; writer failures are returned and the message is not committed.
func (a *Applier) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			a.logger.Error("failed to decode document event",
				"error", err,
				"key", string(key),
			)
			return fmt.Errorf("%w: %v", kafka.ErrSkip, err)
		}
		res, err := a.Apply(ctx, &event)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				a.logger.Warn("invalid document event skipped",
					"key", string(key),
					"error", err,
				)
				return fmt.Errorf("%w: %v", kafka.ErrSkip, err)
			}
			return err
		}
		a.logger.Info("document indexed",
			"doc_id", res.ID,
			"op", res.Op,
			"generation", res.Generation,
		)
		return nil
	}
}
