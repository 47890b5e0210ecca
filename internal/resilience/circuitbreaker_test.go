package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func fail() error    { return errTest }
func succeed() error { return nil }

func tripped(t *testing.T, cfg CircuitBreakerConfig) *CircuitBreaker {
	t.Helper()
	cb := NewCircuitBreaker(cfg)
	for range cb.cfg.MaxFailures {
		_ = cb.Execute(fail)
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		t.Fatalf("state = %v, want open", cb.state)
	}
	return cb
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "stt-primary"})
	if cb.cfg.MaxFailures != DefaultMaxFailures || cb.cfg.ResetTimeout != DefaultResetTimeout || cb.cfg.HalfOpenMax != DefaultHalfOpenMax {
		t.Errorf("config = %+v, want defaults", cb.cfg)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v", cb.State())
	}
	if cb.Name() != "stt-primary" {
		t.Errorf("Name = %q", cb.Name())
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb := tripped(t, CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour})

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("open breaker ran the call")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3})
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_NeutralErrorsDoNotCount(t *testing.T) {
	t.Parallel()

	errNothing := errors.New("nothing to do")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 2,
		Neutral:     func(err error) bool { return errors.Is(err, errNothing) },
	})
	for range 5 {
		_ = cb.Execute(func() error { return fmt.Errorf("wrapped: %w", errNothing) })
		_ = cb.Execute(func() error { return context.Canceled })
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}

	// Neutral outcomes do not reset the failure streak either.
	_ = cb.Execute(fail)
	_ = cb.Execute(func() error { return errNothing })
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		probes []func() error
		want   State
	}{
		{"successes close", []func() error{succeed, succeed}, StateClosed},
		{"one success stays half-open", []func() error{succeed}, StateHalfOpen},
		{"failure re-opens", []func() error{succeed, fail}, StateOpen},
		{"cancel returns the slot", []func() error{
			func() error { return context.Canceled }, succeed, succeed,
		}, StateClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cb := tripped(t, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2})
			time.Sleep(15 * time.Millisecond)
			if cb.State() != StateHalfOpen {
				t.Fatalf("state = %v, want half-open after the timeout", cb.State())
			}
			for _, p := range tt.probes {
				_ = cb.Execute(p)
			}

			cb.mu.Lock()
			got := cb.state
			cb.mu.Unlock()
			if got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()

	cb := tripped(t, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 1})
	time.Sleep(15 * time.Millisecond)

	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(func() error { <-release; return nil })
	}()
	time.Sleep(5 * time.Millisecond)

	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := tripped(t, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("Execute after Reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(99):     "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
