// Package observe provides application-wide observability primitives for
// dialcoach: OpenTelemetry metrics, tracing helpers, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all dialcoach metrics.
const meterName = "github.com/dialcoach/dialcoach"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// MatchDuration tracks opener matching latency.
	MatchDuration metric.Float64Histogram

	// MatchAttempts counts opener match attempts. Use with attribute:
	//   attribute.String("result", "matched" | "ambiguous" | "no_match")
	MatchAttempts metric.Int64Counter

	// Recommendations counts recommendations served. Use with attribute:
	//   attribute.String("reason", ...)
	Recommendations metric.Int64Counter

	// Outcomes counts classified call outcomes. Use with attribute:
	//   attribute.String("outcome", "stayed" | "left")
	Outcomes metric.Int64Counter

	// ProviderErrors counts transcription provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("op", ...)
	ProviderErrors metric.Int64Counter

	// ActiveSessions tracks the number of live coaching sessions.
	ActiveSessions metric.Int64UpDownCounter

	// SessionDuration tracks the wall-clock length of completed sessions.
	SessionDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// matchBuckets defines histogram bucket boundaries (in seconds) for the
// matcher, which runs in-memory and should stay well under a millisecond.
var matchBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1,
}

// sessionBuckets defines histogram bucket boundaries (in seconds) for call
// lengths, from instant hang-ups to long conversations.
var sessionBuckets = []float64{
	5, 10, 30, 60, 120, 300, 600, 1200, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.MatchDuration, err = m.Float64Histogram("dialcoach.match.duration",
		metric.WithDescription("Latency of transcript-to-opener matching."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(matchBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MatchAttempts, err = m.Int64Counter("dialcoach.match.attempts",
		metric.WithDescription("Total opener match attempts by result."),
	); err != nil {
		return nil, err
	}
	if met.Recommendations, err = m.Int64Counter("dialcoach.recommendations",
		metric.WithDescription("Total recommendations served by reason."),
	); err != nil {
		return nil, err
	}
	if met.Outcomes, err = m.Int64Counter("dialcoach.outcomes",
		metric.WithDescription("Total classified call outcomes."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("dialcoach.provider.errors",
		metric.WithDescription("Total transcription provider errors by provider and operation."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("dialcoach.active_sessions",
		metric.WithDescription("Number of live coaching sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("dialcoach.session.duration",
		metric.WithDescription("Wall-clock length of completed sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("dialcoach.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordMatch records one match attempt with its duration and result.
func (m *Metrics) RecordMatch(ctx context.Context, seconds float64, result string) {
	attrs := metric.WithAttributes(attribute.String("result", result))
	m.MatchDuration.Record(ctx, seconds, attrs)
	m.MatchAttempts.Add(ctx, 1, attrs)
}

// RecordRecommendation records one served recommendation by reason.
func (m *Metrics) RecordRecommendation(ctx context.Context, reason string) {
	m.Recommendations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordOutcome records one classified call outcome.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	m.Outcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordProviderError records one transcription provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, op string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("op", op),
		),
	)
}
