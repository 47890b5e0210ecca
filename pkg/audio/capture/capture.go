// Package capture accumulates microphone audio for one listening phase.
//
// A [Source] opens streams on a [audio.Microphone]. [Source.Begin] returns a
// [Capture] that appends every frame of the stream, in order, until
// [Capture.Finalize] is called or the hard ceiling elapses. Finalize stops
// capture, releases the device and returns the concatenated audio as a WAV
// [audio.Buffer]. A capture that never received audio finalizes to the
// explicit EmptyCapture result (ok == false) so the caller can skip the
// transcription round-trip.
package capture

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voicesphere/pkg/audio"
)

// DefaultCeiling bounds how long a single capture may run.
const DefaultCeiling = 30 * time.Second

// DefaultLevelStale is how long [Capture.Level] keeps reporting the last
// frame's loudness when no new frame arrives. Browsers that suppress silent
// frames would otherwise leave the level stuck above the noise floor.
const DefaultLevelStale = 250 * time.Millisecond

// Option configures a [Source].
type Option func(*Source)

// WithCeiling sets the force-finalize ceiling. Non-positive values are ignored.
func WithCeiling(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.ceiling = d
		}
	}
}

// WithLevelGain sets the RMS gain used by [Capture.Level].
func WithLevelGain(g float64) Option {
	return func(s *Source) {
		if g > 0 {
			s.gain = g
		}
	}
}

// WithLevelStale sets how long a frame's loudness stays current. Non-positive
// values are ignored.
func WithLevelStale(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.stale = d
		}
	}
}

// Source wraps a microphone and produces captures. It is safe for concurrent
// use, though the conversation controller only ever holds one capture at a time.
type Source struct {
	mic     audio.Microphone
	ceiling time.Duration
	gain    float64
	stale   time.Duration
}

// NewSource returns a Source over mic.
func NewSource(mic audio.Microphone, opts ...Option) *Source {
	s := &Source{
		mic:     mic,
		ceiling: DefaultCeiling,
		gain:    audio.DefaultLevelGain,
		stale:   DefaultLevelStale,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open acquires a new stream. Permission refusal is reported as
// [audio.ErrPermissionDenied] (wrapped).
func (s *Source) Open(ctx context.Context) (audio.Stream, error) {
	return s.mic.Open(ctx)
}

// Begin starts buffering stream. The returned Capture owns the stream and
// closes it on Finalize or Release.
func (s *Source) Begin(stream audio.Stream) *Capture {
	c := &Capture{
		stream:  stream,
		gain:    s.gain,
		stale:   s.stale,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		quit:    make(chan struct{}),
		started: time.Now(),
	}
	c.timer = time.AfterFunc(s.ceiling, func() {
		slog.Debug("capture ceiling reached, force-finalizing", "ceiling", s.ceiling)
		c.signalDone()
	})
	go c.run()
	return c
}

// Capture is one in-progress recording.
type Capture struct {
	stream audio.Stream
	gain   float64
	stale  time.Duration
	timer  *time.Timer

	mu        sync.Mutex
	chunks    [][]byte
	norm      audio.Normalizer
	level     atomic.Uint64 // float64 bits
	lastFrame atomic.Int64  // offset from started

	started  time.Time
	done     chan struct{} // closed on ceiling or stream end
	doneOnce sync.Once
	quit     chan struct{}
	stopped  chan struct{} // closed when run exits

	releaseOnce sync.Once
	finalized   atomic.Bool
}

func (c *Capture) run() {
	defer close(c.stopped)
	frames := c.stream.Frames()
	for {
		select {
		case <-c.quit:
			return
		case f, ok := <-frames:
			if !ok {
				c.signalDone()
				return
			}
			f = c.norm.Normalize(f)
			if len(f.Data) == 0 {
				continue
			}
			c.level.Store(math.Float64bits(audio.Loudness(f.Data, c.gain)))
			c.lastFrame.Store(int64(time.Since(c.started)))
			c.mu.Lock()
			c.chunks = append(c.chunks, f.Data)
			c.mu.Unlock()
		}
	}
}

func (c *Capture) signalDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Done returns a channel closed when the capture must be finalized without
// waiting for end-of-speech: the ceiling elapsed or the stream ended.
func (c *Capture) Done() <-chan struct{} { return c.done }

// Level returns the loudness of the most recent frame in [0,1], or 0 when no
// frame has arrived for the stale period. It implements energy.LevelSource.
func (c *Capture) Level() float64 {
	if time.Since(c.started)-time.Duration(c.lastFrame.Load()) > c.stale {
		return 0
	}
	return math.Float64frombits(c.level.Load())
}

// Chunks returns the number of frames accumulated so far.
func (c *Capture) Chunks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks)
}

// Finalize stops capture, closes the stream and returns the accumulated
// audio. ok is false when no audio was captured (EmptyCapture). Calling
// Finalize again returns an empty result.
func (c *Capture) Finalize() (buf audio.Buffer, ok bool) {
	if !c.finalized.CompareAndSwap(false, true) {
		return audio.Buffer{}, false
	}
	c.Release()

	c.mu.Lock()
	chunks := c.chunks
	c.chunks = nil
	c.mu.Unlock()

	if len(chunks) == 0 {
		return audio.Buffer{}, false
	}

	var size int
	for _, ch := range chunks {
		size += len(ch)
	}
	pcm := make([]byte, 0, size)
	for _, ch := range chunks {
		pcm = append(pcm, ch...)
	}
	f := audio.SpeechFormat
	samples := len(pcm) / 2
	return audio.Buffer{
		Data:        audio.EncodeWAV(pcm, f),
		ContentType: audio.ContentTypeWAV,
		Format:      f,
		Chunks:      len(chunks),
		Duration:    time.Duration(samples) * time.Second / time.Duration(f.SampleRate),
	}, true
}

// Release stops capture and closes the underlying stream without producing a
// buffer; a later Finalize reports EmptyCapture. It is idempotent.
func (c *Capture) Release() {
	c.releaseOnce.Do(func() {
		c.finalized.Store(true)
		c.timer.Stop()
		close(c.quit)
		if err := c.stream.Close(); err != nil {
			slog.Warn("capture: close stream", "err", err)
		}
		<-c.stopped
		slog.Debug("capture released", "elapsed", time.Since(c.started))
	})
}
