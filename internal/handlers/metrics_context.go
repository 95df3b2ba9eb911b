package handlers

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/gorilla/mux"

	"github.com/gitshopapp/dropship/internal/observability"
)

// MetricsContext puts a meter in the context that tags every metric emitted
// while serving the request, including those from the fulfillment run.
func (h *Handlers) MetricsContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// RequestLogger runs first and has already settled the request id.
		attrs := []attribute.Builder{
			attribute.String("http.request_id", r.Header.Get(requestIDHeader)),
			attribute.String("http.method", r.Method),
			attribute.String("network.client.ip", clientIP(r)),
		}
		if route := routeLabel(r); route != "" {
			attrs = append(attrs, attribute.String("http.route", route))
		}
		if orderID := mux.Vars(r)["id"]; orderID != "" {
			attrs = append(attrs, attribute.String("dropship.order_id", orderID))
		}

		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.SetAttributes(attrs...)
		next.ServeHTTP(w, r.WithContext(observability.WithMeter(ctx, meter)))
	})
}
