// Package observe provides application-wide observability primitives for
// phrasecoach: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all phrasecoach metrics.
const meterName = "github.com/MrWong99/phrasecoach"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech recognition latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks language-model latency. Use with attribute:
	//   attribute.String("purpose", "hint"|"continuation")
	LLMDuration metric.Float64Histogram

	// HintDuration tracks the latency of a single pronunciation hint,
	// including fallbacks.
	HintDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end turn evaluation latency. Use with
	// attribute: attribute.String("outcome", ...)
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// TurnOutcomes counts evaluated turns. Use with attribute:
	//   attribute.String("outcome", ...)
	TurnOutcomes metric.Int64Counter

	// HintFallbacks counts hints that fell back to the raw word.
	HintFallbacks metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveTurns tracks the number of turns currently being evaluated.
	ActiveTurns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// remote recognition and generation calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("phrasecoach.stt.duration",
		metric.WithDescription("Latency of speech recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("phrasecoach.llm.duration",
		metric.WithDescription("Latency of language-model completions by purpose."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HintDuration, err = m.Float64Histogram("phrasecoach.hint.duration",
		metric.WithDescription("Latency of a single pronunciation hint."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("phrasecoach.turn.duration",
		metric.WithDescription("End-to-end turn evaluation latency by outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("phrasecoach.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.TurnOutcomes, err = m.Int64Counter("phrasecoach.turn.outcomes",
		metric.WithDescription("Total evaluated turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.HintFallbacks, err = m.Int64Counter("phrasecoach.hint.fallbacks",
		metric.WithDescription("Total pronunciation hints that fell back to the raw word."),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("phrasecoach.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by provider, kind, and new state."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("phrasecoach.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTurns, err = m.Int64UpDownCounter("phrasecoach.active_turns",
		metric.WithDescription("Number of turns currently being evaluated."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("phrasecoach.http.request.duration",
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBreakerTransition records a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, kind, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("state", state),
		),
	)
}

// RecordHint records one hint's latency and, when fallback is true, a
// fallback increment.
func (m *Metrics) RecordHint(ctx context.Context, d time.Duration, fallback bool) {
	m.HintDuration.Record(ctx, d.Seconds())
	if fallback {
		m.HintFallbacks.Add(ctx, 1)
	}
}

// RecordTurn records a finished turn's outcome and latency.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.TurnOutcomes.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, d.Seconds(), attrs)
}
