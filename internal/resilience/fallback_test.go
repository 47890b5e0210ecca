package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voicesphere/internal/observe"
)

func group(cfg FallbackConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", cfg)
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_Order(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failing   map[string]bool
		wantValue string
		wantCalls []string
		wantErr   error
	}{
		{"primary healthy", nil, "primary", []string{"primary"}, nil},
		{"primary down", map[string]bool{"primary": true}, "secondary", []string{"primary", "secondary"}, nil},
		{"all down", map[string]bool{"primary": true, "secondary": true}, "", []string{"primary", "secondary"}, ErrAllFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fg := group(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3}})
			var calls []string
			got, err := ExecuteWithResult(context.Background(), fg, func(_ context.Context, v string) (string, error) {
				calls = append(calls, v)
				if tt.failing[v] {
					return "", errTest
				}
				return v, nil
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want %v wrapping the cause", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantValue {
				t.Errorf("result = %q, want %q", got, tt.wantValue)
			}
			if len(calls) != len(tt.wantCalls) {
				t.Errorf("calls = %v, want %v", calls, tt.wantCalls)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenCircuit(t *testing.T) {
	t.Parallel()

	fg := group(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}})
	for range 2 {
		_ = fg.Execute(context.Background(), func(_ context.Context, v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}

	var calls []string
	err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
		calls = append(calls, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 || calls[0] != "secondary" {
		t.Errorf("calls = %v, want only secondary", calls)
	}
}

func TestFallbackGroup_NeutralErrorStopsWithoutFailover(t *testing.T) {
	t.Parallel()

	errNoSpeech := errors.New("no speech")
	fg := group(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{
		MaxFailures: 1,
		Neutral:     func(err error) bool { return errors.Is(err, errNoSpeech) },
	}})

	var calls int
	err := fg.Execute(context.Background(), func(context.Context, string) error {
		calls++
		return errNoSpeech
	})
	if !errors.Is(err, errNoSpeech) || errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want the neutral error unchanged", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if s := fg.entries[0].breaker.State(); s != StateClosed {
		t.Errorf("primary breaker = %v, want closed", s)
	}
}

func TestFallbackGroup_CancelledContext(t *testing.T) {
	t.Parallel()

	fg := group(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}})
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	err := fg.Execute(ctx, func(ctx context.Context, _ string) error {
		calls++
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if s := fg.entries[0].breaker.State(); s != StateClosed {
		t.Errorf("cancellation tripped the breaker: %v", s)
	}

	if err := fg.Execute(ctx, func(context.Context, string) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Execute with a done ctx = %v", err)
	}
}

func TestFallbackGroup_RecordsProviderMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	fg := group(FallbackConfig{Kind: "stt", Metrics: m})
	_ = fg.Execute(context.Background(), func(_ context.Context, v string) error {
		if v == "primary" {
			return errTest
		}
		return nil
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	requests, errs := sumOf(rm, "voicesphere.provider.requests"), sumOf(rm, "voicesphere.provider.errors")
	if requests != 2 {
		t.Errorf("provider requests = %d, want 2", requests)
	}
	if errs != 1 {
		t.Errorf("provider errors = %d, want 1", errs)
	}
}

func sumOf(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()

	fg := group(FallbackConfig{})
	if got := fg.Names(); len(got) != 2 || got[0] != "primary" || got[1] != "secondary" {
		t.Errorf("Names = %v", got)
	}
	if fg.Primary() != "primary" {
		t.Errorf("Primary = %q", fg.Primary())
	}
}
