// Package observe provides the observability layer for CareVoice:
// OpenTelemetry metric instruments for the voice pipeline, bridged to a
// Prometheus /metrics endpoint via [InitProvider].
//
// Tests should construct [Metrics] with a private [metric.MeterProvider] to
// avoid cross-test pollution.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all CareVoice metrics.
const meterName = "github.com/carevoice/carevoice"

// latencyBuckets are histogram bucket boundaries (seconds) sized for voice
// pipeline stages: classification is sub-millisecond, transcription polling
// runs into tens of seconds.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// Metrics holds the metric instruments for the voice pipeline. All fields
// are safe for concurrent use.
type Metrics struct {
	// StageDuration tracks per-stage pipeline latency. Attribute:
	// "stage" ∈ {transcribe, classify, fallback, dispatch, speak}.
	StageDuration metric.Float64Histogram

	// Utterances counts processed utterances by classified intent kind.
	// Attribute: "kind".
	Utterances metric.Int64Counter

	// ProviderErrors counts failures of external providers. Attributes:
	// "provider", "kind".
	ProviderErrors metric.Int64Counter

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	var err error
	m := &Metrics{}

	if m.StageDuration, err = meter.Float64Histogram("carevoice.pipeline.stage.duration",
		metric.WithDescription("Latency of one voice pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if m.Utterances, err = meter.Int64Counter("carevoice.utterances",
		metric.WithDescription("Processed utterances by classified intent kind."),
	); err != nil {
		return nil, err
	}
	if m.ProviderErrors, err = meter.Int64Counter("carevoice.provider.errors",
		metric.WithDescription("External provider failures."),
	); err != nil {
		return nil, err
	}
	if m.ActiveSessions, err = meter.Int64UpDownCounter("carevoice.sessions.active",
		metric.WithDescription("Currently connected voice sessions."),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// Stage records the duration of one pipeline stage. Implements the session's
// Recorder contract.
func (m *Metrics) Stage(name string, d time.Duration) {
	m.StageDuration.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.String("stage", name)))
}

// Intent counts one classified utterance. Implements the session's Recorder
// contract.
func (m *Metrics) Intent(kind string) {
	m.Utterances.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}

// ProviderError counts one failed provider call.
func (m *Metrics) ProviderError(provider, kind string) {
	m.ProviderErrors.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind)))
}

// SessionOpened and SessionClosed maintain the active-session gauge.
func (m *Metrics) SessionOpened() {
	m.ActiveSessions.Add(context.Background(), 1)
}

func (m *Metrics) SessionClosed() {
	m.ActiveSessions.Add(context.Background(), -1)
}
