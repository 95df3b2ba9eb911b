package logging

import (
	"context"
	"errors"
	"log/slog"
)

// MultiHandler sends each record to every handler that accepts its level.
// The app pairs the console handler with the Sentry handler this way. Nil
// handlers are ignored; with none left the result discards everything.
func MultiHandler(handlers ...slog.Handler) slog.Handler {
	fan := fanout{}
	for _, handler := range handlers {
		if handler != nil {
			fan.handlers = append(fan.handlers, handler)
		}
	}
	if len(fan.handlers) == 0 {
		return discard.Handler()
	}
	return fan
}

type fanout struct {
	handlers []slog.Handler
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range f.handlers {
		if handler.Enabled(ctx, record.Level) {
			// handlers may retain the record, so each gets its own copy
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) derive(fn func(slog.Handler) slog.Handler) fanout {
	next := fanout{handlers: make([]slog.Handler, len(f.handlers))}
	for i, handler := range f.handlers {
		next.handlers[i] = fn(handler)
	}
	return next
}
