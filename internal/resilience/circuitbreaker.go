// Package resilience guards remote providers with circuit breakers and
// ordered failover.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// stops calling a backend after repeated failures and probes it again after
// a cool-down. [FallbackGroup] pairs several instances of one provider kind,
// each with its own breaker, and tries them in order. The typed wrappers
// ([STTFallback], [TTSFallback], [ChatFallback], [LLMFallback]) implement the
// provider interfaces so the conversation controller never sees the failover.
//
// Two kinds of error never count against a backend: the caller giving up
// (context cancellation) and the outcomes a provider declares neutral, such
// as "no speech in this audio". Neither trips a breaker nor moves on to the
// next backend.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a breaker rejects a call without running it.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// Breaker defaults.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed since the last failure.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successful probes close the breaker; any failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probes admitted while half-open, and the
	// number of successful probes needed to close again.
	HalfOpenMax int

	// Neutral reports errors that count as neither success nor failure.
	// Context cancellation is always neutral.
	Neutral func(error) bool
}

// CircuitBreaker implements the three-state breaker.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	succeeded int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Neutral reports whether err is an outcome that does not reflect on the
// backend's health.
func (cb *CircuitBreaker) Neutral(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return cb.cfg.Neutral != nil && cb.cfg.Neutral(err)
}

// Execute runs fn unless the breaker is open, and records its outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err)
	return err
}

// admit decides whether a call may proceed. probe is set for half-open
// probe calls.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes, cb.succeeded = 0, 0
		slog.Info("resilience: circuit half-open, probing", "name", cb.cfg.Name)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err != nil && cb.Neutral(err):
		if probe && cb.state == StateHalfOpen {
			// Give the probe slot back.
			cb.probes--
		}
	case err != nil:
		cb.openedAt = time.Now()
		if probe {
			cb.state = StateOpen
			slog.Warn("resilience: probe failed, circuit re-opened", "name", cb.cfg.Name, "err", err)
			return
		}
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			cb.state = StateOpen
			slog.Warn("resilience: circuit opened", "name", cb.cfg.Name, "consecutive_failures", cb.failures)
		}
	case probe:
		if cb.state != StateHalfOpen {
			return
		}
		cb.succeeded++
		if cb.succeeded >= cb.cfg.HalfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			slog.Info("resilience: circuit closed", "name", cb.cfg.Name)
		}
	default:
		cb.failures = 0
	}
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports half-open; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures, cb.probes, cb.succeeded = 0, 0, 0
	slog.Info("resilience: circuit reset", "name", cb.cfg.Name)
}
