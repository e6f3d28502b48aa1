// Package observe provides application-wide observability primitives for
// linevox: OpenTelemetry metrics and tracing.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all linevox metrics.
const meterName = "github.com/linevoxhq/linevox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks the time spent handling one completed turn.
	TurnDuration metric.Float64Histogram

	// InterpreterDuration tracks external interpreter round-trip latency.
	InterpreterDuration metric.Float64Histogram

	// CommitDuration tracks commit-action latency against the records store.
	CommitDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed turns.
	Turns metric.Int64Counter

	// Commits counts commit actions. Use with attributes:
	//   attribute.String("action", ...), attribute.String("status", ...)
	Commits metric.Int64Counter

	// LowConfidenceIntents counts interpreter intents rejected below the
	// confidence threshold or with an unknown action.
	LowConfidenceIntents metric.Int64Counter

	// VADActivations counts speech-onset detections.
	VADActivations metric.Int64Counter

	// SessionErrors counts session-fatal recognizer errors. Use with
	// attribute: attribute.String("category", ...)
	SessionErrors metric.Int64Counter

	// PatternsLearned counts speech patterns recorded by calibration.
	PatternsLearned metric.Int64Counter

	// --- Gauges ---

	// ActiveListeners tracks the number of live listening sessions
	// (0 or 1 in a single-agent deployment).
	ActiveListeners metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for conversational latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("linevox.turn.duration",
		metric.WithDescription("Time spent handling one completed turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InterpreterDuration, err = m.Float64Histogram("linevox.interpreter.duration",
		metric.WithDescription("Latency of external interpreter round trips."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CommitDuration, err = m.Float64Histogram("linevox.commit.duration",
		metric.WithDescription("Latency of commit actions against the records store."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("linevox.turns",
		metric.WithDescription("Total completed turns."),
	); err != nil {
		return nil, err
	}
	if met.Commits, err = m.Int64Counter("linevox.commits",
		metric.WithDescription("Total commit actions by action and status."),
	); err != nil {
		return nil, err
	}
	if met.LowConfidenceIntents, err = m.Int64Counter("linevox.intents.low_confidence",
		metric.WithDescription("Total interpreter intents rejected as low confidence or unknown."),
	); err != nil {
		return nil, err
	}
	if met.VADActivations, err = m.Int64Counter("linevox.vad.activations",
		metric.WithDescription("Total speech-onset detections."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("linevox.session.errors",
		metric.WithDescription("Total session-fatal recognizer errors by category."),
	); err != nil {
		return nil, err
	}
	if met.PatternsLearned, err = m.Int64Counter("linevox.patterns.learned",
		metric.WithDescription("Total speech patterns recorded by calibration."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveListeners, err = m.Int64UpDownCounter("linevox.active_listeners",
		metric.WithDescription("Number of live listening sessions."),
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

// RecordCommit records one commit action with the standard attribute set.
func (m *Metrics) RecordCommit(ctx context.Context, action, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("status", status),
	)
	m.Commits.Add(ctx, 1, attrs)
	m.CommitDuration.Record(ctx, seconds, attrs)
}

// RecordSessionError records one session-fatal recognizer error.
func (m *Metrics) RecordSessionError(ctx context.Context, category string) {
	m.SessionErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("category", category)),
	)
}
