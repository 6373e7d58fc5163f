package querylog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analytics"
)

// Inserter persists a batch of events; *Store implements it.
type Inserter interface {
	Insert(ctx context.Context, events []analytics.SearchEvent) error
}

// Writer buffers events and hands them to an Inserter in batches. When the
// buffer is full new events are dropped and counted.
type Writer struct {
	sink          Inserter
	ch            chan analytics.SearchEvent
	batchSize     int
	flushInterval time.Duration
	written       atomic.Int64
	dropped       atomic.Int64
	failed        atomic.Int64
	logger        *slog.Logger
	done          chan struct{}
}

func NewWriter(sink Inserter, bufferSize, batchSize int, flushInterval time.Duration) *Writer {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Writer{
		sink:          sink,
		ch:            make(chan analytics.SearchEvent, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "querylog-writer"),
		done:          make(chan struct{}),
	}
}

// Record queues event without blocking.
func (w *Writer) Record(event analytics.SearchEvent) {
	select {
	case w.ch <- event:
	default:
		w.dropped.Add(1)
	}
}

// Start drains the buffer until ctx is cancelled, then writes what is left.
func (w *Writer) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()

		batch := make([]analytics.SearchEvent, 0, w.batchSize)
		for {
			select {
			case e := <-w.ch:
				batch = append(batch, e)
				if len(batch) >= w.batchSize {
					batch = w.write(ctx, batch)
				}
			case <-ticker.C:
				batch = w.write(ctx, batch)
			case <-ctx.Done():
			drain:
				for {
					select {
					case e := <-w.ch:
						batch = append(batch, e)
					default:
						break drain
					}
				}
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				w.write(flushCtx, batch)
				cancel()
				return
			}
		}
	}()
}

// Close waits for the loop started by Start to exit.
func (w *Writer) Close() {
	<-w.done
}

func (w *Writer) write(ctx context.Context, batch []analytics.SearchEvent) []analytics.SearchEvent {
	if len(batch) == 0 {
		return batch
	}
	if err := w.sink.Insert(ctx, batch); err != nil {
		w.failed.Add(int64(len(batch)))
		w.logger.Error("query log write failed", "rows", len(batch), "error", err)
	} else {
		w.written.Add(int64(len(batch)))
	}
	return make([]analytics.SearchEvent, 0, w.batchSize)
}

// Stats counts rows by outcome.
type Stats struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

func (w *Writer) Stats() Stats {
	return Stats{
		Written: w.written.Load(),
		Dropped: w.dropped.Load(),
		Failed:  w.failed.Load(),
	}
}
