// Package observe provides OpenTelemetry metrics for the aloud server.
//
// Metrics are recorded through the OTel Metrics API and exported through a
// Prometheus reader set up by [InitProvider], so the standard /metrics
// endpoint keeps working. A package-level default [Metrics] instance is
// provided for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all aloud metrics.
const meterName = "github.com/mkaiser42/aloud"

// Metrics holds the metric instruments for the pipeline. All fields are
// safe for concurrent use.
type Metrics struct {
	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks language-model call latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks time from Speak to playback start.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks the whole chunk-to-response turn.
	TurnDuration metric.Float64Histogram

	// Transcriptions counts transcription attempts. Use with attribute:
	//   attribute.String("outcome", "ok"|"empty"|"error")
	Transcriptions metric.Int64Counter

	// Responses counts emitted responses. Use with attribute:
	//   attribute.String("branch", "browse"|"document_qa"|"agreement"|"reconstruction"|"completion")
	Responses metric.Int64Counter

	// TurnsDropped counts turns discarded before a response. Use with
	// attribute: attribute.String("reason", ...).
	TurnsDropped metric.Int64Counter

	// ActiveCaptureClients tracks connected capture WebSocket clients.
	ActiveCaptureClients metric.Int64UpDownCounter

	// ActiveEventClients tracks connected event stream subscribers.
	ActiveEventClients metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("aloud.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("aloud.llm.duration",
		metric.WithDescription("Latency of language-model calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("aloud.tts.duration",
		metric.WithDescription("Latency from Speak to playback start."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("aloud.turn.duration",
		metric.WithDescription("End-to-end latency of one conversation turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Transcriptions, err = m.Int64Counter("aloud.transcriptions",
		metric.WithDescription("Transcription attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Responses, err = m.Int64Counter("aloud.responses",
		metric.WithDescription("Responses emitted by selection branch."),
	); err != nil {
		return nil, err
	}
	if met.TurnsDropped, err = m.Int64Counter("aloud.turns.dropped",
		metric.WithDescription("Turns discarded before a response, by reason."),
	); err != nil {
		return nil, err
	}

	if met.ActiveCaptureClients, err = m.Int64UpDownCounter("aloud.capture.clients",
		metric.WithDescription("Connected audio capture clients."),
	); err != nil {
		return nil, err
	}
	if met.ActiveEventClients, err = m.Int64UpDownCounter("aloud.event.clients",
		metric.WithDescription("Connected event stream subscribers."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call from the global meter provider. Panics if instrument
// creation fails, which cannot happen with the global provider.
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

// RecordTranscription records one transcription attempt.
func (m *Metrics) RecordTranscription(ctx context.Context, outcome string, seconds float64) {
	m.Transcriptions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
	m.STTDuration.Record(ctx, seconds)
}

// RecordResponse records one emitted response.
func (m *Metrics) RecordResponse(ctx context.Context, branch string) {
	m.Responses.Add(ctx, 1,
		metric.WithAttributes(attribute.String("branch", branch)))
}

// RecordDrop records a discarded turn.
func (m *Metrics) RecordDrop(ctx context.Context, reason string) {
	m.TurnsDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}
