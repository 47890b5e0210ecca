package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue sums the data points of an int64 counter whose attributes
// contain kv.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, kv attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(kv.Key); ok && v == kv.Value {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"voicesphere.transcribe.duration", m.TranscribeDuration},
		{"voicesphere.interpret.duration", m.InterpretDuration},
		{"voicesphere.search.duration", m.SearchDuration},
		{"voicesphere.speak.duration", m.SpeakDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "httpapi", "stt", "ok", 200*time.Millisecond)
	m.RecordProviderRequest(ctx, "httpapi", "stt", "ok", 300*time.Millisecond)
	m.RecordProviderRequest(ctx, "httpapi", "stt", "error", time.Second)
	m.RecordProviderError(ctx, "httpapi", "stt")

	rm := collect(t, reader)
	if got := counterValue(t, rm, "voicesphere.provider.requests", attribute.String("status", "ok")); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := counterValue(t, rm, "voicesphere.provider.requests", attribute.String("status", "error")); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
	if got := counterValue(t, rm, "voicesphere.provider.errors", attribute.String("kind", "stt")); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}

	met := findMetric(rm, "voicesphere.provider.duration")
	if met == nil {
		t.Fatal("provider duration not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if hist.DataPoints[0].Count != 3 {
		t.Errorf("duration samples = %d, want 3", hist.DataPoints[0].Count)
	}
}

func TestTurnCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTurnStarted(ctx, "voice")
	m.RecordTurnStarted(ctx, "voice")
	m.RecordTurnStarted(ctx, "text")
	m.RecordTurnCompleted(ctx, "cancelled")
	m.RecordPhase(ctx, "listening")
	m.RecordPlaybackFallback(ctx, "remote_tts")

	rm := collect(t, reader)
	checks := []struct {
		name string
		kv   attribute.KeyValue
		want int64
	}{
		{"voicesphere.turns.started", attribute.String("trigger", "voice"), 2},
		{"voicesphere.turns.started", attribute.String("trigger", "text"), 1},
		{"voicesphere.turns.completed", attribute.String("outcome", "cancelled"), 1},
		{"voicesphere.phase.transitions", attribute.String("phase", "listening"), 1},
		{"voicesphere.playback.fallbacks", attribute.String("reason", "remote_tts"), 1},
	}
	for _, c := range checks {
		if got := counterValue(t, rm, c.name, c.kv); got != c.want {
			t.Errorf("%s{%s} = %d, want %d", c.name, c.kv.Value.Emit(), got, c.want)
		}
	}
}

func TestActiveConversations(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveConversations.Add(ctx, 1)
	m.ActiveConversations.Add(ctx, 1)
	m.ActiveConversations.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "voicesphere.active_conversations")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("not an int64 sum")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active = %d, want 1", got)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}

func TestAttr(t *testing.T) {
	kv := Attr("phase", "idle")
	if string(kv.Key) != "phase" || kv.Value.AsString() != "idle" {
		t.Errorf("Attr = %v", kv)
	}
}
