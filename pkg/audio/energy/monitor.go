package energy

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultInterval approximates a 60 Hz screen-refresh cadence.
	DefaultInterval = 16 * time.Millisecond

	// DefaultSmoothing is the exponential smoothing factor applied to raw
	// loudness before it is compared to the floor and published.
	DefaultSmoothing = 0.3
)

// LevelSource provides the most recent raw loudness in [0,1].
// Implementations must be safe for concurrent use.
type LevelSource interface {
	Level() float64
}

// LevelFunc adapts a plain function to [LevelSource].
type LevelFunc func() float64

// Level implements [LevelSource].
func (f LevelFunc) Level() float64 { return f() }

// Option configures a [Monitor].
type Option func(*Monitor)

// WithThresholds overrides the detector thresholds.
func WithThresholds(th Thresholds) Option {
	return func(m *Monitor) { m.det = NewDetector(th) }
}

// WithInterval sets the sampling period. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithSmoothing sets the smoothing factor in (0,1]. 1 disables smoothing.
func WithSmoothing(alpha float64) Option {
	return func(m *Monitor) {
		if alpha > 0 && alpha <= 1 {
			m.alpha = alpha
		}
	}
}

// WithLevelCallback registers fn to receive the published level on every
// tick. The published value is zero when the smoothed level is at or under
// the noise floor. fn is called on the sampling goroutine and must not block.
func WithLevelCallback(fn func(float64)) Option {
	return func(m *Monitor) { m.onLevel = fn }
}

// Monitor samples a [LevelSource] periodically and runs a [Detector] over
// it. Create one per Listening phase; a Monitor cannot be restarted.
type Monitor struct {
	src      LevelSource
	det      *Detector
	interval time.Duration
	alpha    float64
	onLevel  func(float64)

	triggered chan struct{}
	quit      chan struct{}
	exited    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewMonitor creates a Monitor over src. Call [Monitor.Start] to begin sampling.
func NewMonitor(src LevelSource, opts ...Option) *Monitor {
	m := &Monitor{
		src:       src,
		det:       NewDetector(Thresholds{}),
		interval:  DefaultInterval,
		alpha:     DefaultSmoothing,
		triggered: make(chan struct{}),
		quit:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start launches the sampling loop. It returns immediately. The loop exits
// when end-of-speech fires, when [Monitor.Stop] is called, or when ctx is
// done. Calling Start more than once has no effect.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.det.Reset()
		go m.loop(ctx)
	})
}

// Triggered returns a channel that is closed when end-of-speech fires.
// It is never closed if the monitor is stopped first.
func (m *Monitor) Triggered() <-chan struct{} { return m.triggered }

// Stop halts sampling and waits for the loop to exit. It is idempotent and
// safe to call before Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.quit) })
	// A monitor that never started has no loop to close exited.
	m.startOnce.Do(func() { close(m.exited) })
	<-m.exited
}

// Armed reports whether sustained speech has been observed. Only meaningful
// after the loop has exited.
func (m *Monitor) Armed() bool {
	select {
	case <-m.exited:
		return m.det.Armed()
	default:
		return false
	}
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.exited)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var smoothed float64
	floor := m.det.Thresholds().NoiseFloor
	first := true

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.quit:
			return
		case now := <-ticker.C:
			raw := m.src.Level()
			if first {
				smoothed = raw
				first = false
			} else {
				smoothed = m.alpha*raw + (1-m.alpha)*smoothed
			}

			if m.onLevel != nil {
				pub := smoothed
				if pub <= floor {
					pub = 0
				}
				m.onLevel(pub)
			}

			if m.det.Step(now, smoothed) {
				close(m.triggered)
				if m.onLevel != nil {
					m.onLevel(0)
				}
				return
			}
		}
	}
}
