// Package observe provides application-wide observability primitives for
// phiredact: OpenTelemetry metrics, tracing, and the provider setup that
// bridges them to a Prometheus /metrics endpoint.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all phiredact metrics.
const meterName = "github.com/halcyonhealth/phiredact"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// LayerDuration tracks per-detection-layer latency. Use with attribute:
	//   attribute.String("layer", "rules"|"dictionary"|"model")
	LayerDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end redaction latency. Use with attribute:
	//   attribute.String("mode", "tag"|"reversible")
	PipelineDuration metric.Float64Histogram

	// SpansDetected counts accepted entity spans. Use with attributes:
	//   attribute.String("layer", ...), attribute.String("category", ...)
	SpansDetected metric.Int64Counter

	// HallucinationsBlocked counts model-claimed entities that could not be
	// located in the source text and were discarded.
	HallucinationsBlocked metric.Int64Counter

	// Invocations counts pipeline runs. Use with attributes:
	//   attribute.String("mode", ...), attribute.Bool("llm_enabled", ...)
	Invocations metric.Int64Counter

	// ProviderRequests counts model/cloud API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...),
	//   attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts model/cloud API failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The rule
// and dictionary passes land in the sub-millisecond buckets; model inference
// dominates the upper ones.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.LayerDuration, err = m.Float64Histogram("phiredact.layer.duration",
		metric.WithDescription("Latency of a single detection layer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("phiredact.pipeline.duration",
		metric.WithDescription("End-to-end redaction pipeline latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpansDetected, err = m.Int64Counter("phiredact.spans.detected",
		metric.WithDescription("Accepted entity spans by layer and category."),
	); err != nil {
		return nil, err
	}
	if met.HallucinationsBlocked, err = m.Int64Counter("phiredact.hallucinations.blocked",
		metric.WithDescription("Model-claimed entities discarded because they were not locatable in the source text."),
	); err != nil {
		return nil, err
	}
	if met.Invocations, err = m.Int64Counter("phiredact.invocations",
		metric.WithDescription("Pipeline invocations by mode and LLM availability."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("phiredact.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("phiredact.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("phiredact.http.request.duration",
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

// RecordLayer records one detection layer's duration and per-category span
// counts.
func (m *Metrics) RecordLayer(ctx context.Context, layer string, d time.Duration, categories map[string]int) {
	m.LayerDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("layer", layer)),
	)
	for category, n := range categories {
		m.SpansDetected.Add(ctx, int64(n),
			metric.WithAttributes(
				attribute.String("layer", layer),
				attribute.String("category", category),
			),
		)
	}
}

// RecordInvocation records one completed pipeline run.
func (m *Metrics) RecordInvocation(ctx context.Context, mode string, llmEnabled bool, total time.Duration, hallucinationsBlocked int) {
	m.PipelineDuration.Record(ctx, total.Seconds(),
		metric.WithAttributes(attribute.String("mode", mode)),
	)
	m.Invocations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.Bool("llm_enabled", llmEnabled),
		),
	)
	if hallucinationsBlocked > 0 {
		m.HallucinationsBlocked.Add(ctx, int64(hallucinationsBlocked))
	}
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
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
