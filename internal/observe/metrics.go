// Package observe provides application-wide observability primitives for
// bondvox: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all bondvox metrics.
const meterName = "github.com/MrWong99/bondvox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// CorrectionDuration tracks transcript correction latency (phonetic and
	// LLM stages together).
	CorrectionDuration metric.Float64Histogram

	// ParseDuration tracks quote engine latency.
	ParseDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// QuotesParsed counts engine calls. Use with attributes:
	//   attribute.String("pattern", ...), attribute.String("reason", ...)
	QuotesParsed metric.Int64Counter

	// Corrections counts transcript substitutions. Use with attribute:
	//   attribute.String("method", ...)
	Corrections metric.Int64Counter

	// SamplesSaved counts persisted samples. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	SamplesSaved metric.Int64Counter

	// Notifications counts quote publications. Use with attributes:
	//   attribute.String("channel", ...), attribute.String("status", ...)
	Notifications metric.Int64Counter

	// CircuitTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("breaker", ...), attribute.String("to", ...)
	CircuitTransitions metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// InFlightTranscriptions tracks uploads currently being transcribed.
	InFlightTranscriptions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// transcription and correction round-trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// parseBuckets covers the in-process quote engine, which runs in
// microseconds.
var parseBuckets = []float64{
	0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("bondvox.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CorrectionDuration, err = m.Float64Histogram("bondvox.correction.duration",
		metric.WithDescription("Latency of transcript correction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ParseDuration, err = m.Float64Histogram("bondvox.parse.duration",
		metric.WithDescription("Latency of quote parsing."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(parseBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("bondvox.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.QuotesParsed, err = m.Int64Counter("bondvox.quotes.parsed",
		metric.WithDescription("Total parse calls by matched pattern and outcome reason."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("bondvox.corrections",
		metric.WithDescription("Total transcript substitutions by correction method."),
	); err != nil {
		return nil, err
	}
	if met.SamplesSaved, err = m.Int64Counter("bondvox.samples.saved",
		metric.WithDescription("Total stored samples by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.Notifications, err = m.Int64Counter("bondvox.notifications",
		metric.WithDescription("Total quote publications by channel and status."),
	); err != nil {
		return nil, err
	}
	if met.CircuitTransitions, err = m.Int64Counter("bondvox.circuit.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("bondvox.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.InFlightTranscriptions, err = m.Int64UpDownCounter("bondvox.transcriptions.in_flight",
		metric.WithDescription("Number of uploads currently being transcribed."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("bondvox.http.request.duration",
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

// RecordParse records one engine call. pattern is empty for unmatched text.
func (m *Metrics) RecordParse(ctx context.Context, pattern, reason string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("pattern", pattern),
		attribute.String("reason", reason),
	)
	m.QuotesParsed.Add(ctx, 1, attrs)
	m.ParseDuration.Record(ctx, seconds, attrs)
}

// RecordCorrection records one transcript substitution.
func (m *Metrics) RecordCorrection(ctx context.Context, method string) {
	m.Corrections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("method", method)),
	)
}

// RecordSample records a sample store write.
func (m *Metrics) RecordSample(ctx context.Context, kind, status string) {
	m.SamplesSaved.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordNotification records a quote publication attempt.
func (m *Metrics) RecordNotification(ctx context.Context, channel, status string) {
	m.Notifications.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("status", status),
		),
	)
}

// RecordCircuitTransition records a circuit breaker state change.
func (m *Metrics) RecordCircuitTransition(ctx context.Context, breaker, to string) {
	m.CircuitTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("to", to),
		),
	)
}
