// Package nrt keeps a current IndexSearcher over a live index.Writer:
// reference-counted acquisition, refreshes that never block searches, and a
// reopen loop that lets writers wait until their changes are searchable.
package nrt

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/metrics"
)

// SearcherFactory builds the searcher published for a freshly opened
// reader. It may warm the searcher before returning it, and must return a
// searcher over exactly that reader.
type SearcherFactory interface {
	NewSearcher(r *index.Reader) (*search.IndexSearcher, error)
}

// SearcherFactoryFunc adapts a function to SearcherFactory.
type SearcherFactoryFunc func(r *index.Reader) (*search.IndexSearcher, error)

func (f SearcherFactoryFunc) NewSearcher(r *index.Reader) (*search.IndexSearcher, error) {
	return f(r)
}

// ConfigFactory builds plain searchers with cfg.
func ConfigFactory(cfg search.Config) SearcherFactory {
	return SearcherFactoryFunc(func(r *index.Reader) (*search.IndexSearcher, error) {
		return search.NewIndexSearcher(r, cfg), nil
	})
}

// RefreshListener is told about every refresh attempt. Both calls run on
// the refreshing goroutine while it holds the refresh lock.
type RefreshListener interface {
	BeforeRefresh()
	AfterRefresh(didRefresh bool)
}

// Manager publishes the current searcher. Acquired searchers stay usable,
// with their segments pinned, until released.
type Manager struct {
	writer  *index.Writer
	factory SearcherFactory
	metrics *metrics.Metrics
	logger  *slog.Logger

	current   atomic.Pointer[search.IndexSearcher]
	refreshMu sync.Mutex

	listenersMu sync.Mutex
	listeners   []RefreshListener
}

// NewManager opens a near-real-time reader on w and publishes the searcher
// factory builds for it. A nil factory uses search.DefaultConfig.
func NewManager(w *index.Writer, factory SearcherFactory, m *metrics.Metrics) (*Manager, error) {
	if factory == nil {
		factory = ConfigFactory(search.DefaultConfig())
	}
	mgr := &Manager{
		writer:  w,
		factory: factory,
		metrics: m,
		logger:  slog.Default().With("component", "searcher-manager"),
	}
	r, err := index.OpenReader(w)
	if err != nil {
		return nil, fmt.Errorf("opening initial reader: %w", err)
	}
	s, err := mgr.newSearcher(r)
	if err != nil {
		return nil, err
	}
	mgr.current.Store(s)
	return mgr, nil
}

// newSearcher runs the factory on r, releasing r on failure.
func (m *Manager) newSearcher(r *index.Reader) (*search.IndexSearcher, error) {
	s, err := m.factory.NewSearcher(r)
	if err != nil {
		_ = r.DecRef()
		return nil, fmt.Errorf("searcher factory: %w", err)
	}
	if s == nil || s.Reader() != r {
		_ = r.DecRef()
		return nil, apperrors.IllegalStatef("searcher factory must return a searcher over the reader it was given")
	}
	return s, nil
}

// Acquire returns the current searcher with an added reference. Every
// successful Acquire must be paired with Release.
func (m *Manager) Acquire() (*search.IndexSearcher, error) {
	for {
		s := m.current.Load()
		if s == nil {
			return nil, fmt.Errorf("%w: searcher manager", apperrors.ErrAlreadyClosed)
		}
		if s.Reader().TryIncRef() {
			return s, nil
		}
		if m.current.Load() == s {
			// Still published yet already released: someone decremented
			// the reader outside Acquire/Release.
			return nil, apperrors.IllegalStatef("current searcher has refCount %d; it was released too many times", s.Reader().RefCount())
		}
	}
}

// Release drops a reference taken by Acquire.
func (m *Manager) Release(s *search.IndexSearcher) error {
	if s == nil {
		return nil
	}
	return s.Reader().DecRef()
}

// MaybeRefresh reopens the searcher if the index changed. It returns false
// without waiting when another goroutine is already refreshing.
func (m *Manager) MaybeRefresh() (bool, error) {
	if !m.refreshMu.TryLock() {
		return false, nil
	}
	defer m.refreshMu.Unlock()
	return true, m.refresh()
}

// MaybeRefreshBlocking is MaybeRefresh but waits for a running refresh to
// finish and then refreshes itself.
func (m *Manager) MaybeRefreshBlocking() error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	return m.refresh()
}

func (m *Manager) refresh() error {
	m.notifyBefore()
	refreshed, err := m.swapIfChanged()
	m.notifyAfter(refreshed && err == nil)
	switch {
	case err != nil:
		m.metrics.Refresh("failed")
		m.logger.Error("searcher refresh failed", "error", err)
	case refreshed:
		m.metrics.Refresh("refreshed")
	default:
		m.metrics.Refresh("unchanged")
	}
	return err
}

func (m *Manager) swapIfChanged() (bool, error) {
	ref, err := m.Acquire()
	if err != nil {
		return false, err
	}
	defer m.Release(ref)

	r, err := index.OpenIfChanged(ref.Reader(), m.writer)
	if err != nil {
		return false, fmt.Errorf("reopening reader: %w", err)
	}
	if r == nil {
		return false, nil
	}
	s, err := m.newSearcher(r)
	if err != nil {
		return false, err
	}
	// Only Close can replace the current searcher while the refresh lock
	// is held.
	if !m.current.CompareAndSwap(ref, s) {
		_ = s.Reader().DecRef()
		return false, fmt.Errorf("%w: searcher manager", apperrors.ErrAlreadyClosed)
	}
	m.logger.Debug("searcher refreshed", "max_doc", r.MaxDoc(), "num_docs", r.NumDocs())
	return true, ref.Reader().DecRef()
}

// AddListener registers l for every later refresh.
func (m *Manager) AddListener(l RefreshListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) snapshotListeners() []RefreshListener {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	return append([]RefreshListener(nil), m.listeners...)
}

func (m *Manager) notifyBefore() {
	for _, l := range m.snapshotListeners() {
		l.BeforeRefresh()
	}
}

func (m *Manager) notifyAfter(didRefresh bool) {
	for _, l := range m.snapshotListeners() {
		l.AfterRefresh(didRefresh)
	}
}

// Close releases the manager's reference to the current searcher. Searchers
// still acquired stay valid until released.
func (m *Manager) Close() error {
	s := m.current.Swap(nil)
	if s == nil {
		return nil
	}
	m.logger.Info("searcher manager closed")
	return s.Reader().DecRef()
}
