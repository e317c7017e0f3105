// Package tracing times the steps of one operation as a tree of spans. When
// the outermost span ends, the whole tree is logged at debug level with the
// request ID as trace ID, so slow steps can be found without an external
// tracing backend.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

type contextKey struct{}

type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration

	root   bool
	logger *slog.Logger

	mu       sync.Mutex
	attrs    []any
	children []*Span
	ended    bool
}

// Start opens a span named name. It becomes a child of the span already in
// ctx, or a new root whose trace ID is the request ID (or a fresh UUID).
func Start(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{Name: name, Start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		s.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	} else {
		s.root = true
		s.TraceID = logger.RequestID(ctx)
		if s.TraceID == "" {
			s.TraceID = uuid.NewString()
		}
		s.logger = logger.FromContext(ctx)
	}
	return context.WithValue(ctx, contextKey{}, s), s
}

func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(contextKey{}).(*Span)
	return s
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// End fixes the span's duration; calling it again has no effect. Ending a
// root span logs the tree.
func (s *Span) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.Duration = time.Since(s.Start)
	s.mu.Unlock()

	if s.root && s.logger.Enabled(context.Background(), slog.LevelDebug) {
		s.log(s.logger, 0)
	}
}

// Children returns a snapshot of the direct child spans.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

func (s *Span) log(l *slog.Logger, depth int) {
	s.mu.Lock()
	args := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"depth", depth,
		"duration", s.Duration,
	}
	args = append(args, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	l.Debug("span", args...)
	for _, c := range children {
		c.log(l, depth+1)
	}
}
