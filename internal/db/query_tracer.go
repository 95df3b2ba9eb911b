package db

import (
	"context"
	"errors"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

const maxTracedQueryLen = 512

type querySpanContextKey struct{}

// queryTracer turns pgx queries into child spans of whatever span the caller
// already started. Queries outside a span are not traced.
type queryTracer struct{}

func newQueryTracer() *queryTracer {
	return &queryTracer{}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	query := normalizeQuery(data.SQL)
	span := sentry.StartSpan(
		ctx,
		"db.sql.query",
		sentry.WithDescription(query),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")
	span.SetData("db.args", len(data.Args))
	if operation := queryOperation(query); operation != "" {
		span.SetData("db.operation", operation)
	}

	return context.WithValue(span.Context(), querySpanContextKey{}, span)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, _ := ctx.Value(querySpanContextKey{}).(*sentry.Span)
	if span == nil {
		return
	}

	switch {
	case data.Err == nil:
		span.Status = sentry.SpanStatusOK
	case errors.Is(data.Err, pgx.ErrNoRows):
		// Expected when an order or supplier id does not resolve.
		span.Status = sentry.SpanStatusNotFound
	default:
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
	}

	if rows := data.CommandTag.RowsAffected(); rows >= 0 {
		span.SetData("db.rows_affected", rows)
	}
	span.Finish()
}

func normalizeQuery(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if normalized == "" {
		return "sql.query"
	}
	if len(normalized) > maxTracedQueryLen {
		return normalized[:maxTracedQueryLen]
	}
	return normalized
}

func queryOperation(query string) string {
	operation, _, _ := strings.Cut(query, " ")
	return strings.ToUpper(operation)
}
