package handlers

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gitshopapp/dropship/internal/logging"
	"github.com/gitshopapp/dropship/internal/observability"
)

const (
	requestIDHeader    = "X-Request-ID"
	maxRequestIDLength = 128
	// Fulfillment runs render PDFs and book labels; anything slower than
	// this is worth a warning.
	slowRequestThreshold = 20 * time.Second
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// RequestLogger assigns a request id, stores a request-scoped logger in the
// context and logs one line per completed request.
func (h *Handlers) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()

		requestID := requestIDFromRequest(r)
		r.Header.Set(requestIDHeader, requestID)
		w.Header().Set(requestIDHeader, requestID)

		route := routeLabel(r)
		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_ip", clientIP(r),
		}
		if route != "" {
			attrs = append(attrs, "route", route)
		}
		if userAgent := strings.TrimSpace(r.UserAgent()); userAgent != "" {
			attrs = append(attrs, "user_agent", userAgent)
		}
		if r.ContentLength >= 0 {
			attrs = append(attrs, "content_length", r.ContentLength)
		}
		ctx := logging.With(r.Context(), h.logger, attrs...)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := rec.code()
		elapsed := time.Since(started)
		recordRequestMetrics(ctx, r.Method, route, status, started)

		logging.FromContext(ctx, h.logger).Log(ctx, completionLevel(r.URL.Path, status, elapsed), "request completed",
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"bytes", rec.bytes,
		)
	})
}

func completionLevel(path string, status int, elapsed time.Duration) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case elapsed >= slowRequestThreshold:
		return slog.LevelWarn
	case path == "/health":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func recordRequestMetrics(ctx context.Context, method, route string, status int, started time.Time) {
	if route == "" {
		route = "unknown"
	}
	attrs := sentry.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)
	meter := observability.MeterFromContext(ctx)
	meter.Count("http.server.requests", 1, attrs)
	if status >= http.StatusInternalServerError {
		meter.Count("http.server.errors", 1, attrs)
	}
	observability.RecordDuration(ctx, "http.server.duration", started,
		attribute.String("http.route", route),
		attribute.String("http.status_class", strconv.Itoa(status/100)+"xx"),
	)
}

// requestIDFromRequest reuses a caller-supplied id when it is short and
// printable, otherwise it mints one.
func requestIDFromRequest(r *http.Request) string {
	if r != nil {
		if id := strings.TrimSpace(r.Header.Get(requestIDHeader)); validRequestID(id) {
			return id
		}
	}
	return uuid.NewString()
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func routeLabel(r *http.Request) string {
	if r == nil {
		return ""
	}
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	if name := route.GetName(); name != "" {
		return name
	}
	template, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return template
}
