package logging

import (
	"context"
	"log/slog"
)

// fanoutHandler duplicates records to several handlers, for example the
// debug.log handler and the console when -printtoconsole is set.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	var filtered []slog.Handler
	for _, h := range handlers {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	switch len(filtered) {
	case 0:
		return NoopHandler{}
	case 1:
		return filtered[0]
	}
	return &fanoutHandler{handlers: filtered}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for idx, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		rec := record
		if idx < len(h.handlers)-1 {
			rec = record.Clone()
		}
		if err := handler.Handle(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

// categoryHandler drops debug records tagged with a category that was not
// requested through -debug. Untagged records and records at info or above
// always pass.
type categoryHandler struct {
	next    slog.Handler
	allowed map[string]struct{}
	// category carried by attributes bound through WithAttrs
	bound string
}

func newCategoryHandler(next slog.Handler, categories []string) slog.Handler {
	if len(categories) == 0 {
		return next
	}
	allowed := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		allowed[c] = struct{}{}
	}
	return &categoryHandler{next: next, allowed: allowed}
}

func (h *categoryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *categoryHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < slog.LevelInfo {
		category := h.bound
		record.Attrs(func(attr slog.Attr) bool {
			if attr.Key == FieldCategory {
				category = attr.Value.String()
				return false
			}
			return true
		})
		if category != "" {
			if _, ok := h.allowed[category]; !ok {
				return nil
			}
		}
	}
	return h.next.Handle(ctx, record)
}

func (h *categoryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := h.bound
	for _, attr := range attrs {
		if attr.Key == FieldCategory {
			bound = attr.Value.String()
		}
	}
	return &categoryHandler{next: h.next.WithAttrs(attrs), allowed: h.allowed, bound: bound}
}

func (h *categoryHandler) WithGroup(name string) slog.Handler {
	return &categoryHandler{next: h.next.WithGroup(name), allowed: h.allowed, bound: h.bound}
}

// runIDHandler stamps every record with the daemon run identifier.
type runIDHandler struct {
	base  slog.Handler
	runID string
}

func newRunIDHandler(base slog.Handler, runID string) slog.Handler {
	if runID == "" {
		return base
	}
	return &runIDHandler{base: base, runID: runID}
}

func (h *runIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *runIDHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(slog.String(FieldRunID, h.runID))
	return h.base.Handle(ctx, record)
}

func (h *runIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &runIDHandler{base: h.base.WithAttrs(attrs), runID: h.runID}
}

func (h *runIDHandler) WithGroup(name string) slog.Handler {
	return &runIDHandler{base: h.base.WithGroup(name), runID: h.runID}
}
