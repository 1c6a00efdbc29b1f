// Package observe provides application-wide observability primitives for
// Kupo: OpenTelemetry metrics, tracing helpers, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Kupo metrics.
const meterName = "github.com/MrWong99/kupo"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Actor runtime ---

	// MessagesHandled counts payloads processed by actor handlers. Use with
	// attribute.String("actor", ...).
	MessagesHandled metric.Int64Counter

	// MessagesDropped counts payloads sent to a closed mailbox.
	MessagesDropped metric.Int64Counter

	// MailboxDepth tracks the number of queued, unprocessed payloads per actor.
	MailboxDepth metric.Int64UpDownCounter

	// ActorFaults counts handler failures that took an actor out of service.
	ActorFaults metric.Int64Counter

	// HandlerDuration tracks how long a single payload took to handle.
	HandlerDuration metric.Float64Histogram

	// --- Audio stages ---

	// FramesCaptured counts frames read from the capture device.
	FramesCaptured metric.Int64Counter

	// Beats counts onsets reported by the beat detector.
	Beats metric.Int64Counter

	// KeywordDetections counts wake-word hits.
	KeywordDetections metric.Int64Counter

	// VoiceSessions counts completed voice sessions. Use with
	// attribute.String("reason", "vad"|"timeout"|"retrigger").
	VoiceSessions metric.Int64Counter

	// CommandMatches counts transcripts that matched a command. Use with
	// attribute.String("command", ...).
	CommandMatches metric.Int64Counter

	// STTDuration tracks the time to finalise a transcript.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis and playback time.
	TTSDuration metric.Float64Histogram

	// ProviderErrors counts engine failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds).
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Actor runtime.
	if met.MessagesHandled, err = m.Int64Counter("kupo.actor.messages",
		metric.WithDescription("Payloads processed by actor handlers."),
	); err != nil {
		return nil, err
	}
	if met.MessagesDropped, err = m.Int64Counter("kupo.actor.dropped",
		metric.WithDescription("Payloads sent after an actor mailbox was closed."),
	); err != nil {
		return nil, err
	}
	if met.MailboxDepth, err = m.Int64UpDownCounter("kupo.actor.mailbox_depth",
		metric.WithDescription("Queued payloads awaiting processing."),
	); err != nil {
		return nil, err
	}
	if met.ActorFaults, err = m.Int64Counter("kupo.actor.faults",
		metric.WithDescription("Handler failures that took an actor out of service."),
	); err != nil {
		return nil, err
	}
	if met.HandlerDuration, err = m.Float64Histogram("kupo.actor.handle.duration",
		metric.WithDescription("Time spent handling a single payload."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Audio stages.
	if met.FramesCaptured, err = m.Int64Counter("kupo.audio.frames",
		metric.WithDescription("Frames read from the capture device."),
	); err != nil {
		return nil, err
	}
	if met.Beats, err = m.Int64Counter("kupo.onset.beats",
		metric.WithDescription("Onsets reported by the beat detector."),
	); err != nil {
		return nil, err
	}
	if met.KeywordDetections, err = m.Int64Counter("kupo.voice.keywords",
		metric.WithDescription("Wake-word detections."),
	); err != nil {
		return nil, err
	}
	if met.VoiceSessions, err = m.Int64Counter("kupo.voice.sessions",
		metric.WithDescription("Completed voice sessions by end reason."),
	); err != nil {
		return nil, err
	}
	if met.CommandMatches, err = m.Int64Counter("kupo.voice.command_matches",
		metric.WithDescription("Transcripts matched to a command."),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("kupo.stt.duration",
		metric.WithDescription("Latency of finalising a transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("kupo.tts.duration",
		metric.WithDescription("Latency of speaking a response."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("kupo.provider.errors",
		metric.WithDescription("Engine failures by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("kupo.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordHandled records one processed payload and its handling latency for
// the named actor.
func (m *Metrics) RecordHandled(ctx context.Context, actor string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("actor", actor))
	m.MessagesHandled.Add(ctx, 1, attrs)
	m.HandlerDuration.Record(ctx, seconds, attrs)
}

// RecordFault records an actor fault.
func (m *Metrics) RecordFault(ctx context.Context, actor string) {
	m.ActorFaults.Add(ctx, 1, metric.WithAttributes(attribute.String("actor", actor)))
}

// RecordDropped records a payload that was discarded because the target
// mailbox was closed.
func (m *Metrics) RecordDropped(ctx context.Context, actor string) {
	m.MessagesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("actor", actor)))
}

// AddMailboxDepth adjusts the mailbox depth gauge for the named actor.
func (m *Metrics) AddMailboxDepth(ctx context.Context, actor string, delta int64) {
	m.MailboxDepth.Add(ctx, delta, metric.WithAttributes(attribute.String("actor", actor)))
}

// RecordProviderError records an engine error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
