// Package observability holds the Sentry metric and tracing helpers shared
// by the HTTP layer and the fulfillment run.
package observability

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
)

type meterKey struct{}

// WithMeter stores meter in ctx so later metrics inherit its attributes.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterKey{}, meter.WithCtx(ctx))
}

// MeterFromContext returns the request meter, or a bare one outside a request.
func MeterFromContext(ctx context.Context) sentry.Meter {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter, ok := ctx.Value(meterKey{}).(sentry.Meter); ok && meter != nil {
		return meter.WithCtx(ctx)
	}
	return sentry.NewMeter(ctx).WithCtx(ctx)
}

// Count increments name by one.
func Count(ctx context.Context, name string, attrs ...attribute.Builder) {
	MeterFromContext(ctx).Count(name, 1, sentry.WithAttributes(attrs...))
}

// RecordDuration emits the time since started as a millisecond distribution.
func RecordDuration(ctx context.Context, name string, started time.Time, attrs ...attribute.Builder) {
	elapsed := float64(time.Since(started)) / float64(time.Millisecond)
	MeterFromContext(ctx).Distribution(name, elapsed,
		sentry.WithUnit(sentry.UnitMillisecond),
		sentry.WithAttributes(attrs...),
	)
}
