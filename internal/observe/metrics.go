// Package observe provides application-wide observability primitives for
// lanpad: OpenTelemetry metrics and a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter is wired via [InitProvider] so that metrics can be scraped from
// the optional /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should
// use [NewMetrics] with a custom [metric.MeterProvider] to avoid
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

// meterName is the instrumentation scope name used for all lanpad metrics.
const meterName = "lanpad"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// CardsCreated counts finalized cards. Use with attribute:
	//   attribute.String("source", "segment"|"card"|"edit"|"correction")
	CardsCreated metric.Int64Counter

	// LiveUpdates counts live-text replacements received from the phone.
	LiveUpdates metric.Int64Counter

	// Reconnects counts push-channel reconnect attempts. Use with:
	//   attribute.String("transport", ...)
	Reconnects metric.Int64Counter

	// CorrectionRequests counts correction gateway operations. Use with:
	//   attribute.String("provider", ...), attribute.String("kind", "test"|"correction"),
	//   attribute.String("status", "ok"|<failure kind>)
	CorrectionRequests metric.Int64Counter

	// CorrectionDuration tracks end-to-end correction latency. Use with:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	CorrectionDuration metric.Float64Histogram

	// ClipboardErrors counts failed clipboard writes.
	ClipboardErrors metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized
// for LLM round-trips, which range from sub-second hosted calls to slow
// local models.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation
// fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CardsCreated, err = m.Int64Counter("lanpad.cards.created",
		metric.WithDescription("Total finalized cards by source."),
	); err != nil {
		return nil, err
	}
	if met.LiveUpdates, err = m.Int64Counter("lanpad.live.updates",
		metric.WithDescription("Total live-text updates received."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("lanpad.feed.reconnects",
		metric.WithDescription("Total push-channel reconnect attempts by transport."),
	); err != nil {
		return nil, err
	}
	if met.CorrectionRequests, err = m.Int64Counter("lanpad.correction.requests",
		metric.WithDescription("Total correction operations by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.CorrectionDuration, err = m.Float64Histogram("lanpad.correction.duration",
		metric.WithDescription("End-to-end correction latency by provider and kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClipboardErrors, err = m.Int64Counter("lanpad.clipboard.errors",
		metric.WithDescription("Total failed clipboard writes."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen
// with the global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity
// at call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCorrection records one finished correction operation: the request
// counter with its status and the duration histogram.
func (m *Metrics) RecordCorrection(ctx context.Context, provider, kind, status string, elapsed time.Duration) {
	m.CorrectionRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
	m.CorrectionDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
