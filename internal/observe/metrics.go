// Package observe provides application-wide observability primitives for
// VoiceSphere: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all VoiceSphere metrics.
const meterName = "github.com/MrWong99/voicesphere"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per turn stage ---

	// TranscribeDuration tracks the Transcribing phase.
	TranscribeDuration metric.Float64Histogram

	// InterpretDuration tracks the Interpreting phase.
	InterpretDuration metric.Float64Histogram

	// SearchDuration tracks the Searching phase.
	SearchDuration metric.Float64Histogram

	// SpeakDuration tracks one utterance from Speak to settlement.
	SpeakDuration metric.Float64Histogram

	// ProviderDuration tracks individual provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderDuration metric.Float64Histogram

	// --- Counters ---

	// TurnsStarted counts turns by trigger ("voice", "text", "greeting").
	TurnsStarted metric.Int64Counter

	// TurnsCompleted counts turns by outcome ("completed", "cancelled",
	// "empty", "error").
	TurnsCompleted metric.Int64Counter

	// PhaseTransitions counts entries into each phase.
	PhaseTransitions metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// PlaybackFallbacks counts latches to local synthesis by reason.
	PlaybackFallbacks metric.Int64Counter

	// --- Gauges ---

	// ActiveConversations tracks the number of connected browser sessions.
	ActiveConversations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// request/response backends and spoken utterances.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.TranscribeDuration, "voicesphere.transcribe.duration", "Latency of the Transcribing phase."},
		{&met.InterpretDuration, "voicesphere.interpret.duration", "Latency of the Interpreting phase."},
		{&met.SearchDuration, "voicesphere.search.duration", "Latency of the Searching phase."},
		{&met.SpeakDuration, "voicesphere.speak.duration", "Time from speak request to playback settlement."},
		{&met.ProviderDuration, "voicesphere.provider.duration", "Latency of individual provider calls."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.TurnsStarted, "voicesphere.turns.started", "Turns started by trigger."},
		{&met.TurnsCompleted, "voicesphere.turns.completed", "Turns finished by outcome."},
		{&met.PhaseTransitions, "voicesphere.phase.transitions", "Phase entries by phase."},
		{&met.ProviderRequests, "voicesphere.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.ProviderErrors, "voicesphere.provider.errors", "Total provider errors by provider and kind."},
		{&met.PlaybackFallbacks, "voicesphere.playback.fallbacks", "Latches to local speech synthesis by reason."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveConversations, err = m.Int64UpDownCounter("voicesphere.active_conversations",
		metric.WithDescription("Number of connected conversation sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voicesphere.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordProviderRequest records one provider call with its outcome and
// latency.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string, d time.Duration) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
	m.ProviderDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
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

// RecordTurnStarted counts a new turn.
func (m *Metrics) RecordTurnStarted(ctx context.Context, trigger string) {
	m.TurnsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// RecordTurnCompleted counts a finished turn.
func (m *Metrics) RecordTurnCompleted(ctx context.Context, outcome string) {
	m.TurnsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordPhase counts an entry into phase.
func (m *Metrics) RecordPhase(ctx context.Context, phase string) {
	m.PhaseTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

// RecordPlaybackFallback counts a latch to local synthesis.
func (m *Metrics) RecordPlaybackFallback(ctx context.Context, reason string) {
	m.PlaybackFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
