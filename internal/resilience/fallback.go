package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/voicesphere/internal/observe"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or
// was skipped by its open breaker. The last error is wrapped alongside it.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for every entry's breaker. Name is
	// replaced by the entry name.
	CircuitBreaker CircuitBreakerConfig

	// Kind labels provider metrics ("stt", "tts", "chat", "llm").
	Kind string

	// Metrics, if set, receives one request record per attempt.
	Metrics *observe.Metrics
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary and zero or more fallbacks of one provider
// type. Entries are tried in registration order; an entry whose breaker is
// open is skipped.
//
// Entries must be registered before the group is used concurrently.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	entries []fallbackEntry[T]
}

// NewFallbackGroup returns a group with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	cb := fg.cfg.CircuitBreaker
	cb.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{name: name, value: value, breaker: NewCircuitBreaker(cb)})
}

// Names returns the entry names in order.
func (fg *FallbackGroup[T]) Names() []string {
	out := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		out[i] = e.name
	}
	return out
}

// Primary returns the first entry.
func (fg *FallbackGroup[T]) Primary() T { return fg.entries[0].value }

// Execute runs fn against the entries in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// ExecuteWithResult runs fn against the entries of fg in order and returns
// the first successful result.
//
// A neutral error (see [CircuitBreakerConfig.Neutral]) or a cancelled ctx
// ends the attempt immediately and is returned unchanged: the backend
// answered, or the caller stopped listening, so no other backend is tried.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.entries {
		e := &fg.entries[i]
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		var result R
		start := time.Now()
		err := e.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(ctx, e.value)
			return callErr
		})
		fg.observe(ctx, e.name, err, time.Since(start), e.breaker)

		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("resilience: skipping provider, circuit open", "provider", e.name, "kind", fg.cfg.Kind)
		case ctx.Err() != nil || e.breaker.Neutral(err):
			return zero, err
		default:
			slog.Warn("resilience: provider failed", "provider", e.name, "kind", fg.cfg.Kind, "err", err)
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

func (fg *FallbackGroup[T]) observe(ctx context.Context, name string, err error, d time.Duration, cb *CircuitBreaker) {
	m := fg.cfg.Metrics
	if m == nil {
		return
	}
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrCircuitOpen):
		status = "circuit_open"
	case ctx.Err() != nil:
		status = "cancelled"
	case cb.Neutral(err):
		status = "neutral"
	default:
		status = "error"
		m.RecordProviderError(ctx, name, fg.cfg.Kind)
	}
	m.RecordProviderRequest(ctx, name, fg.cfg.Kind, status, d)
}
