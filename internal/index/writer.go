package index

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analysis"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/metrics"
)

// WriterConfig configures a Writer. A zero DataDir keeps the index in
// memory only.
type WriterConfig struct {
	DataDir         string
	Analyzer        analysis.Analyzer
	MaxBufferedDocs int
	Metrics         *metrics.Metrics
}

// Writer adds and deletes documents. Added documents are buffered and
// become a segment on Flush; deletions by term apply to every document added
// before them, buffered or flushed.
//
// Every mutation returns the current indexing generation. A reader opened
// after IncrementGeneration returned g sees all mutations that returned g
// or less.
type Writer struct {
	mu         sync.Mutex
	cfg        WriterConfig
	segments   []*Segment
	buffer     *segmentBuilder
	counter    int64
	version    int64
	generation atomic.Int64
	closed     bool
	logger     *slog.Logger
}

// OpenWriter creates a writer, recovering committed segments from DataDir.
func OpenWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Analyzer == nil {
		cfg.Analyzer = analysis.Standard{}
	}
	w := &Writer{
		cfg:    cfg,
		buffer: newSegmentBuilder(cfg.Analyzer),
		logger: slog.Default().With("component", "index-writer"),
	}
	w.generation.Store(1)
	if cfg.DataDir != "" {
		if err := w.loadCommitted(); err != nil {
			return nil, fmt.Errorf("loading committed segments: %w", err)
		}
	}
	return w, nil
}

func (w *Writer) ensureOpen() error {
	if w.closed {
		return fmt.Errorf("%w: index writer", apperrors.ErrAlreadyClosed)
	}
	return nil
}

// AddDocument buffers doc and returns the indexing generation.
func (w *Writer) AddDocument(doc *Document) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return 0, err
	}
	if err := w.addLocked(doc); err != nil {
		return 0, err
	}
	return w.generation.Load(), nil
}

// UpdateDocument deletes every document containing t, then adds doc.
func (w *Writer) UpdateDocument(t Term, doc *Document) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return 0, err
	}
	w.deleteLocked(t)
	if err := w.addLocked(doc); err != nil {
		return 0, err
	}
	return w.generation.Load(), nil
}

// DeleteDocuments deletes every document containing any of terms.
func (w *Writer) DeleteDocuments(terms ...Term) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return 0, err
	}
	for _, t := range terms {
		w.deleteLocked(t)
	}
	return w.generation.Load(), nil
}

// DeleteAll drops every segment and buffered document.
func (w *Writer) DeleteAll() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return 0, err
	}
	for _, seg := range w.segments {
		seg.core.decRef()
	}
	w.segments = nil
	w.buffer.reset()
	w.version++
	w.logger.Info("all documents deleted")
	return w.generation.Load(), nil
}

func (w *Writer) addLocked(doc *Document) error {
	if doc == nil {
		return apperrors.Invalidf("nil document")
	}
	w.buffer.addDocument(doc)
	w.version++
	w.cfg.Metrics.DocsIndexed(1)
	if w.cfg.MaxBufferedDocs > 0 && w.buffer.numDocs() >= w.cfg.MaxBufferedDocs {
		w.logger.Debug("buffered docs reached threshold, flushing",
			"buffered", w.buffer.numDocs(),
			"threshold", w.cfg.MaxBufferedDocs,
		)
		w.flushLocked()
	}
	return nil
}

func (w *Writer) deleteLocked(t Term) {
	changed := w.buffer.deleteTerm(t) > 0
	kept := w.segments[:0:0]
	for _, seg := range w.segments {
		pe := seg.Postings(t, seg.LiveDocs())
		if pe == nil {
			kept = append(kept, seg)
			continue
		}
		docs := roaring.New()
		for doc := pe.NextDoc(); doc != NoMoreDocs; doc = pe.NextDoc() {
			docs.Add(uint32(doc))
		}
		next := seg.withDeletions(docs)
		if next != seg {
			changed = true
		}
		if next.NumDocs() == 0 {
			w.logger.Debug("dropping fully deleted segment", "segment", seg.Name())
			seg.core.decRef()
			continue
		}
		kept = append(kept, next)
	}
	w.segments = kept
	if changed {
		w.version++
	}
}

// Flush turns buffered documents into a new segment.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return err
	}
	w.flushLocked()
	return nil
}

func (w *Writer) flushLocked() {
	core := w.buffer.build(w.nextSegmentName())
	w.buffer.reset()
	if core == nil {
		return
	}
	w.segments = append(w.segments, &Segment{core: core})
	w.cfg.Metrics.SegmentFlushed()
	w.logger.Debug("segment flushed",
		"segment", core.Name(),
		"docs", core.MaxDoc(),
		"active_segments", len(w.segments),
	)
}

func (w *Writer) nextSegmentName() string {
	name := "_" + strconv.FormatInt(w.counter, 36)
	w.counter++
	return name
}

// Commit flushes and, when a DataDir is configured, persists the current
// segments and their deletions.
func (w *Writer) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return err
	}
	w.flushLocked()
	if w.cfg.DataDir == "" {
		return nil
	}
	return w.persistLocked()
}

// NumDocs counts live documents, buffered ones included.
func (w *Writer) NumDocs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.buffer.numDocs()
	for _, seg := range w.segments {
		n += seg.NumDocs()
	}
	return n
}

// Version changes with every mutation; equal versions mean equal content.
func (w *Writer) Version() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version
}

// Generation returns the current indexing generation.
func (w *Writer) Generation() int64 {
	return w.generation.Load()
}

// IncrementGeneration advances the indexing generation and returns the value
// it had before.
func (w *Writer) IncrementGeneration() int64 {
	return w.generation.Add(1) - 1
}

// Close commits when persistent and releases the writer's segment
// references. Open readers stay usable.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.flushLocked()
	var err error
	if w.cfg.DataDir != "" {
		err = w.persistLocked()
	}
	for _, seg := range w.segments {
		seg.core.decRef()
	}
	w.segments = nil
	w.closed = true
	w.logger.Info("index writer closed")
	return err
}

// OpenReader flushes buffered documents and returns a near-real-time reader
// over the writer's current segments.
func OpenReader(w *Writer) (*Reader, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return nil, err
	}
	w.flushLocked()
	segs := make([]*Segment, len(w.segments))
	copy(segs, w.segments)
	return newReader(segs, w.version), nil
}

// OpenIfChanged returns a new reader if the writer changed since old was
// opened, or nil if it did not.
func OpenIfChanged(old *Reader, w *Writer) (*Reader, error) {
	w.mu.Lock()
	unchanged := old.Version() == w.version && w.buffer.numDocs() == 0
	w.mu.Unlock()
	if unchanged {
		return nil, nil
	}
	r, err := OpenReader(w)
	if err != nil {
		return nil, err
	}
	if r.Version() == old.Version() {
		r.DecRef()
		return nil, nil
	}
	return r, nil
}
