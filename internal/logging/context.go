// Package logging carries request-scoped slog loggers through contexts.
package logging

import (
	"context"
	"io"
	"log/slog"
)

type loggerKey struct{}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// WithLogger stores logger in ctx. A nil logger stores a discarding one.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = discard
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, then fallback, then a logger
// that drops everything.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	if fallback != nil {
		return fallback
	}
	return discard
}

// With returns a context whose logger carries args on every later line,
// such as the operator, order id or idempotency key of a request.
func With(ctx context.Context, fallback *slog.Logger, args ...any) context.Context {
	return WithLogger(ctx, FromContext(ctx, fallback).With(args...))
}
