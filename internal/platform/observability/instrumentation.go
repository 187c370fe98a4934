package observability

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type generationKey struct{}

// WithGeneration tags ctx with the shell cache generation serving it. Spans
// and metrics recorded under ctx carry it as the "generation" attribute.
func WithGeneration(ctx context.Context, generation string) context.Context {
	if generation == "" {
		return ctx
	}
	return context.WithValue(ctx, generationKey{}, generation)
}

// Generation returns the generation attached by WithGeneration.
func Generation(ctx context.Context) string {
	g, _ := ctx.Value(generationKey{}).(string)
	return g
}

// Enabled reports whether observability has been toggled on.
func Enabled() bool {
	_, cfg := current()
	return cfg.Enabled
}

// Span times one operation. A nil or disabled span ignores every call.
type Span struct {
	logger *slog.Logger
	ctx    context.Context
	name   string
	start  time.Time
	mu     sync.Mutex
	attrs  []slog.Attr
	ended  bool
}

// StartSpan opens a span named component.operation.
func StartSpan(ctx context.Context, component, operation string) (context.Context, *Span) {
	l, cfg := current()
	if l == nil || !cfg.Enabled {
		return ctx, nil
	}
	return ctx, &Span{
		logger: l,
		ctx:    ctx,
		name:   component + "." + operation,
		start:  time.Now(),
	}
}

// Set adds an attribute reported when the span ends.
func (s *Span) Set(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// SetStatus records an HTTP status, upstream or served.
func (s *Span) SetStatus(code int) { s.Set("status", code) }

// End closes the span; err marks it failed. Only the first call counts.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	attrs := append([]slog.Attr{
		slog.String("span", s.name),
		slog.Duration("duration", time.Since(s.start)),
	}, s.attrs...)
	s.mu.Unlock()

	if g := Generation(s.ctx); g != "" {
		attrs = append(attrs, slog.String("generation", g))
	}
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.LogAttrs(s.ctx, level, "obs span", attrs...)
}

// RecordMetric emits a datapoint via the configured logger. Labels are
// written in key order; ctx contributes the generation label when set.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	l, cfg := current()
	if l == nil || !cfg.Enabled {
		return
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, labels[k]))
	}
	if _, set := labels["generation"]; !set {
		if g := Generation(ctx); g != "" {
			attrs = append(attrs, slog.String("generation", g))
		}
	}
	l.LogAttrs(ctx, slog.LevelDebug, "obs metric", attrs...)
}
