package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// responseWatcher captures the status code written downstream so the span and
// log line can report it.
type responseWatcher struct {
	http.ResponseWriter
	status int
}

func (w *responseWatcher) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer so http.ResponseController (and
// libraries following its protocol) can reach optional interfaces such as
// http.Hijacker.
func (w *responseWatcher) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware wraps an HTTP handler with tracing and request metrics. Incoming
// W3C Trace Context headers continue the caller's trace; otherwise a new one
// starts here. The trace ID is echoed back as X-Correlation-ID, request
// duration lands in [Metrics.HTTPRequestDuration], and every request logs one
// completion line.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			watcher := &responseWatcher{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(watcher, r.WithContext(ctx))

			elapsed := time.Since(started)
			span.SetAttributes(semconv.HTTPResponseStatusCode(watcher.status))
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("path", r.URL.Path),
			))

			slog.LogAttrs(ctx, slog.LevelInfo, "request completed",
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", watcher.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
