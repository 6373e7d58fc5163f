// Package querylog persists served searches to PostgreSQL. Writes go
// through a bounded buffer drained in batches, so a slow or unavailable
// database never delays a search response.
package querylog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS query_log (
    id          BIGSERIAL PRIMARY KEY,
    event_type  TEXT NOT NULL,
    query       TEXT NOT NULL,
    filter      TEXT NOT NULL DEFAULT '',
    sorted      BOOLEAN NOT NULL DEFAULT FALSE,
    total_hits  INTEGER NOT NULL,
    returned    INTEGER NOT NULL,
    latency_ms  BIGINT NOT NULL,
    cache_hit   BOOLEAN NOT NULL DEFAULT FALSE,
    version     BIGINT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    request_id  TEXT NOT NULL DEFAULT '',
    logged_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS query_log_logged_at_idx ON query_log (logged_at DESC);`

var columns = []string{
	"event_type", "query", "filter", "sorted", "total_hits", "returned",
	"latency_ms", "cache_hit", "version", "error", "request_id", "logged_at",
}

// Store reads and writes the query_log table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "querylog-store"),
	}
}

// Migrate creates the table and its index if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating query_log table: %w", err)
	}
	return nil
}

// Insert writes events in one transaction using COPY.
func (s *Store) Insert(ctx context.Context, events []analytics.SearchEvent) error {
	if len(events) == 0 {
		return nil
	}
	err := s.db.InTxRetry(ctx, "querylog-insert", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("query_log", columns...))
		if err != nil {
			return fmt.Errorf("preparing copy: %w", err)
		}
		for _, e := range events {
			if _, err := stmt.ExecContext(ctx, row(e)...); err != nil {
				_ = stmt.Close()
				return fmt.Errorf("copying row: %w", err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("flushing copy: %w", err)
		}
		return stmt.Close()
	})
	if err != nil {
		return err
	}
	s.logger.Debug("query log batch written", "rows", len(events))
	return nil
}

func row(e analytics.SearchEvent) []any {
	return []any{
		string(e.Type), e.Query, e.Filter, e.Sorted, e.TotalHits, e.Returned,
		e.LatencyMs, e.CacheHit, e.Version, e.Error, e.RequestID, e.Timestamp.UTC(),
	}
}

// Recent returns the newest limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]analytics.SearchEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT event_type, query, filter, sorted, total_hits, returned,
		        latency_ms, cache_hit, version, error, request_id, logged_at
		   FROM query_log ORDER BY logged_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing query log: %w", err)
	}
	defer rows.Close()

	var events []analytics.SearchEvent
	for rows.Next() {
		var (
			e  analytics.SearchEvent
			et string
		)
		if err := rows.Scan(&et, &e.Query, &e.Filter, &e.Sorted, &e.TotalHits, &e.Returned,
			&e.LatencyMs, &e.CacheHit, &e.Version, &e.Error, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning query log row: %w", err)
		}
		e.Type = analytics.EventType(et)
		events = append(events, e)
	}
	return events, rows.Err()
}
