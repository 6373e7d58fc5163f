// Package tracing times the phases of a request as a tree of spans carried
// in the context. A nil *Span is valid and records nothing, so code can open
// child spans whether or not the caller started a trace.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

type Span struct {
	name    string
	traceID string
	start   time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	attrs    []any
	children []*Span
}

// Start opens a root span.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{name: name, traceID: traceID, start: time.Now()}
	return context.WithValue(ctx, contextKey{}, s), s
}

// StartChild opens a span under the one in ctx. Without a parent it returns
// ctx unchanged and a nil span.
func StartChild(ctx context.Context, name string) (context.Context, *Span) {
	parent := FromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	child := &Span{name: name, traceID: parent.traceID, start: time.Now()}
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, contextKey{}, child), child
}

func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(contextKey{}).(*Span)
	return s
}

// End fixes the span's duration; later calls are ignored.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.duration = time.Since(s.start)
		s.ended = true
	}
}

func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

func (s *Span) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Duration is zero until End.
func (s *Span) Duration() time.Duration {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Span) Children() []*Span {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Phases flattens the tree into slash-joined span paths and their
// durations in microseconds, e.g. "search/execute/parse".
func (s *Span) Phases() map[string]int64 {
	out := make(map[string]int64)
	s.walk("", 0, func(path string, _ int, span *Span) {
		out[path] = span.Duration().Microseconds()
	})
	return out
}

// Log writes one debug record per span, depth first.
func (s *Span) Log(logger *slog.Logger) {
	if s == nil || !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	s.walk("", 0, func(path string, depth int, span *Span) {
		span.mu.Lock()
		attrs := append([]any{
			"trace_id", span.traceID,
			"span", path,
			"depth", depth,
			"duration_us", span.duration.Microseconds(),
		}, span.attrs...)
		span.mu.Unlock()
		logger.Debug("span", attrs...)
	})
}

func (s *Span) walk(prefix string, depth int, fn func(path string, depth int, span *Span)) {
	if s == nil {
		return
	}
	path := s.name
	if prefix != "" {
		path = prefix + "/" + s.name
	}
	fn(path, depth, s)
	for _, c := range s.Children() {
		c.walk(path, depth+1, fn)
	}
}
