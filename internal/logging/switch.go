package logging

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
)

// Switch is a slog.Handler whose destination can be replaced after loggers
// have been derived from it. The daemon logs to the console until the data
// directory log is open, then switches every existing logger over at once.
type Switch struct {
	target *atomic.Pointer[slog.Handler]
	ops    []handlerOp
	cache  *atomic.Pointer[derived]
}

type handlerOp struct {
	attrs []slog.Attr
	group string
}

type derived struct {
	base    *slog.Handler
	handler slog.Handler
}

// NewSwitch returns a switch writing to h.
func NewSwitch(h slog.Handler) *Switch {
	s := &Switch{target: new(atomic.Pointer[slog.Handler]), cache: new(atomic.Pointer[derived])}
	s.Set(h)
	return s
}

// Set redirects the switch and every handler derived from it to h.
func (s *Switch) Set(h slog.Handler) {
	if h == nil {
		h = NoopHandler{}
	}
	s.target.Store(&h)
}

// Current returns the handler records are currently written to.
func (s *Switch) Current() slog.Handler {
	return *s.target.Load()
}

func (s *Switch) resolve() slog.Handler {
	base := s.target.Load()
	if d := s.cache.Load(); d != nil && d.base == base {
		return d.handler
	}
	h := *base
	for _, op := range s.ops {
		if op.group != "" {
			h = h.WithGroup(op.group)
		} else {
			h = h.WithAttrs(op.attrs)
		}
	}
	s.cache.Store(&derived{base: base, handler: h})
	return h
}

func (s *Switch) Enabled(ctx context.Context, level slog.Level) bool {
	return s.resolve().Enabled(ctx, level)
}

func (s *Switch) Handle(ctx context.Context, record slog.Record) error {
	return s.resolve().Handle(ctx, record)
}

func (s *Switch) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return s
	}
	return s.with(handlerOp{attrs: slices.Clone(attrs)})
}

func (s *Switch) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	return s.with(handlerOp{group: name})
}

func (s *Switch) with(op handlerOp) *Switch {
	return &Switch{
		target: s.target,
		ops:    append(slices.Clip(s.ops), op),
		cache:  new(atomic.Pointer[derived]),
	}
}
