package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler delivers each record to every sink whose level accepts it. The
// daemon pairs the console with its rotating file, and job logs add a third
// sink for the duration of one attempt.
type teeHandler []slog.Handler

func tee(sinks ...slog.Handler) slog.Handler {
	var live teeHandler
	for _, sink := range sinks {
		if sink != nil {
			live = append(live, sink)
		}
	}
	switch len(live) {
	case 0:
		return NoopHandler{}
	case 1:
		return live[0]
	}
	return live
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sink := range t {
		if sink.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, sink := range t {
		if !sink.Enabled(ctx, record.Level) {
			continue
		}
		// Handlers may retain attrs, so each gets its own copy.
		if err := sink.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) teeHandler {
	out := make(teeHandler, len(t))
	for i, sink := range t {
		out[i] = fn(sink)
	}
	return out
}

// TeeLogger returns a logger writing to base's handler and to each extra sink.
func TeeLogger(base *slog.Logger, extra ...slog.Handler) *slog.Logger {
	if base == nil {
		return slog.New(tee(extra...))
	}
	return slog.New(tee(append([]slog.Handler{base.Handler()}, extra...)...))
}
