package nrt

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/metrics"
)

// ReopenLoop refreshes a Manager in the background: every MaxStale when
// nobody is waiting, and as soon as MinStale allows when a caller waits
// for a generation.
type ReopenLoop struct {
	manager  *Manager
	writer   *index.Writer
	maxStale time.Duration
	minStale time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu              sync.Mutex
	refreshStartGen int64
	searchingGen    int64
	waitingGen      int64
	// reopened is closed and replaced after every refresh.
	reopened chan struct{}

	wake chan struct{}
	done chan struct{}
}

// NewReopenLoop ties a loop to the manager serving w. minStale must not
// exceed maxStale. The loop registers itself as a refresh listener so
// refreshes triggered elsewhere also advance the searching generation.
func NewReopenLoop(w *index.Writer, mgr *Manager, maxStale, minStale time.Duration, m *metrics.Metrics) (*ReopenLoop, error) {
	if maxStale <= 0 || minStale < 0 {
		return nil, apperrors.Invalidf("staleness bounds must be positive, got max=%s min=%s", maxStale, minStale)
	}
	if minStale > maxStale {
		return nil, apperrors.Invalidf("minStale %s exceeds maxStale %s", minStale, maxStale)
	}
	l := &ReopenLoop{
		manager:  mgr,
		writer:   w,
		maxStale: maxStale,
		minStale: minStale,
		metrics:  m,
		logger:   slog.Default().With("component", "reopen-loop"),
		reopened: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	mgr.AddListener(l)
	return l, nil
}

func (l *ReopenLoop) BeforeRefresh() {
	gen := l.writer.IncrementGeneration()
	l.mu.Lock()
	l.refreshStartGen = gen
	l.mu.Unlock()
}

// AfterRefresh publishes the generation captured before the refresh: the
// new searcher, or the unchanged one, covers every mutation up to it.
func (l *ReopenLoop) AfterRefresh(bool) {
	l.mu.Lock()
	if l.refreshStartGen > l.searchingGen {
		l.searchingGen = l.refreshStartGen
		l.metrics.Generation(l.searchingGen)
	}
	close(l.reopened)
	l.reopened = make(chan struct{})
	l.mu.Unlock()
}

// SearchingGeneration is the highest generation visible to searchers
// acquired from the manager now.
func (l *ReopenLoop) SearchingGeneration() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.searchingGen
}

// WaitForGeneration blocks until searchers include every mutation that
// returned gen, or ctx ends. It never holds the manager's refresh lock, so
// a refresh stuck in a slow searcher factory cannot deadlock waiters
// against each other.
func (l *ReopenLoop) WaitForGeneration(ctx context.Context, gen int64) error {
	if cur := l.writer.Generation(); gen > cur {
		return apperrors.IllegalStatef("generation %d was never returned by the writer (current %d)", gen, cur)
	}
	for {
		l.mu.Lock()
		if l.searchingGen >= gen {
			l.mu.Unlock()
			return nil
		}
		if gen > l.waitingGen {
			l.waitingGen = gen
		}
		reopened := l.reopened
		l.mu.Unlock()

		select {
		case l.wake <- struct{}{}:
		default:
		}
		select {
		case <-reopened:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Start runs the loop until ctx is cancelled. Close waits for it to stop.
func (l *ReopenLoop) Start(ctx context.Context) {
	go func() {
		defer close(l.done)
		lastReopen := time.Now()
		for {
			l.mu.Lock()
			stale := l.maxStale
			if l.waitingGen > l.searchingGen {
				stale = l.minStale
			}
			l.mu.Unlock()

			if sleep := time.Until(lastReopen.Add(stale)); sleep > 0 {
				timer := time.NewTimer(sleep)
				select {
				case <-ctx.Done():
					timer.Stop()
					l.logger.Info("reopen loop stopped", "searching_generation", l.SearchingGeneration())
					return
				case <-l.wake:
					timer.Stop()
					continue
				case <-timer.C:
				}
			} else if ctx.Err() != nil {
				return
			}

			lastReopen = time.Now()
			if err := l.manager.MaybeRefreshBlocking(); err != nil {
				l.logger.Error("background refresh failed", "error", err)
			}
		}
	}()
	l.logger.Info("reopen loop started", "max_stale", l.maxStale, "min_stale", l.minStale)
}

// Close waits for the loop started by Start to return.
func (l *ReopenLoop) Close() {
	<-l.done
}
