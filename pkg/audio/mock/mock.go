// Package mock provides in-memory implementations of the [audio.Microphone],
// [audio.Stream], [audio.Sink] and [audio.Synthesizer] interfaces for use in
// unit tests.
//
// All mocks are safe for concurrent use. They record every call so that tests
// can assert on call counts and arguments, and they expose exported fields the
// test can set to control return values.
//
// Typical usage:
//
//	mic := &mock.Microphone{}
//	stream, _ := mic.Open(ctx)
//	mic.Last().Send(audio.AudioFrame{Data: pcm, SampleRate: 16000, Channels: 1})
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/voicesphere/pkg/audio"
)

// ─── Microphone ──────────────────────────────────────────────────────────────

// Microphone is a mock implementation of [audio.Microphone].
type Microphone struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// RejectWhileOpen makes Open fail with ErrDeviceBusy while a previously
	// opened stream has not been closed, mimicking a stale-device error.
	RejectWhileOpen bool

	// OnOpen, if set, is called with every stream Open returns. Tests use it
	// to start feeding frames.
	OnOpen func(*Stream)

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	streams []*Stream
}

// ErrDeviceBusy is returned by [Microphone.Open] when RejectWhileOpen is set
// and a stream is still open.
var ErrDeviceBusy = errors.New("mock: microphone busy")

// Open implements [audio.Microphone].
func (m *Microphone) Open(_ context.Context) (audio.Stream, error) {
	m.mu.Lock()
	m.CallCountOpen++
	if m.OpenErr != nil {
		err := m.OpenErr
		m.mu.Unlock()
		return nil, err
	}
	if m.RejectWhileOpen {
		for _, s := range m.streams {
			if !s.IsClosed() {
				m.mu.Unlock()
				return nil, ErrDeviceBusy
			}
		}
	}
	s := NewStream(audio.SpeechFormat)
	m.streams = append(m.streams, s)
	onOpen := m.OnOpen
	m.mu.Unlock()

	if onOpen != nil {
		onOpen(s)
	}
	return s, nil
}

// Streams returns every stream opened so far, in order.
func (m *Microphone) Streams() []*Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Stream(nil), m.streams...)
}

// Last returns the most recently opened stream, or nil.
func (m *Microphone) Last() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// OpenCount returns the number of Open calls.
func (m *Microphone) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCountOpen
}

// ─── Stream ──────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream]. Feed it with Send.
type Stream struct {
	mu     sync.Mutex
	frames chan audio.AudioFrame
	format audio.Format
	closed bool

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewStream returns an open stream with a generous frame buffer.
func NewStream(f audio.Format) *Stream {
	return &Stream{frames: make(chan audio.AudioFrame, 1024), format: f}
}

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan audio.AudioFrame { return s.frames }

// Format implements [audio.Stream].
func (s *Stream) Format() audio.Format { return s.format }

// Close implements [audio.Stream]. It is idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (s *Stream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send delivers f to the consumer. It returns false if the stream is closed
// or the buffer is full.
func (s *Stream) Send(f audio.AudioFrame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- f:
		return true
	default:
		return false
	}
}

// Tone returns a 16 kHz mono frame of the given duration at a constant
// amplitude (0 gives digital silence). Amplitude is a fraction of full scale.
func Tone(d time.Duration, amplitude float64) audio.AudioFrame {
	n := int(d * 16000 / time.Second)
	samples := make([]int16, n)
	v := int16(amplitude * 32767)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = v
		} else {
			samples[i] = -v
		}
	}
	return audio.AudioFrame{Data: audio.Int16sToBytes(samples), SampleRate: 16000, Channels: 1}
}

// PlayTrace feeds s with 10 ms frames following the given segments in real
// time, stopping early when the stream closes or ctx is done.
func PlayTrace(ctx context.Context, s *Stream, segs ...Segment) {
	const frame = 10 * time.Millisecond
	ticker := time.NewTicker(frame)
	defer ticker.Stop()
	for _, seg := range segs {
		for elapsed := time.Duration(0); elapsed < seg.Duration; elapsed += frame {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if !s.Send(Tone(frame, seg.Amplitude)) && s.IsClosed() {
				return
			}
		}
	}
}

// Segment is a constant-amplitude run used by [PlayTrace].
type Segment struct {
	Amplitude float64
	Duration  time.Duration
}

// ─── Sink ────────────────────────────────────────────────────────────────────

// Sink is a mock implementation of [audio.Sink].
//
// By default Play returns immediately. Set PlayDuration to make it block, or
// set Hold to make it block until the test calls Release or ctx is done.
type Sink struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play.
	PlayErr error

	// PrimeErr, if non-nil, is returned by Prime.
	PrimeErr error

	// PlayDuration makes Play block for this long (or until ctx is done).
	PlayDuration time.Duration

	// Hold makes Play block until Release is called or ctx is done.
	Hold bool

	// Played records every clip passed to Play, in order.
	Played []audio.Clip

	// CallCountPrime records how many times Prime was called.
	CallCountPrime int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	playing int
	release chan struct{}
	started chan struct{}
}

// Prime implements [audio.Sink].
func (s *Sink) Prime(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountPrime++
	return s.PrimeErr
}

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, clip audio.Clip) error {
	s.mu.Lock()
	s.Played = append(s.Played, clip)
	if s.PlayErr != nil {
		err := s.PlayErr
		s.mu.Unlock()
		return err
	}
	s.playing++
	if s.release == nil {
		s.release = make(chan struct{})
	}
	release := s.release
	hold, dur := s.Hold, s.PlayDuration
	if s.started != nil {
		close(s.started)
		s.started = nil
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.playing--
		s.mu.Unlock()
	}()

	var timeout <-chan time.Time
	if !hold {
		if dur <= 0 {
			return nil
		}
		t := time.NewTimer(dur)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-release:
		return nil
	case <-timeout:
		return nil
	}
}

// Stop implements [audio.Sink]. It ends any held playback.
func (s *Sink) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	if s.release != nil {
		close(s.release)
		s.release = nil
	}
	return nil
}

// Release ends every Play currently blocked by Hold.
func (s *Sink) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.release != nil {
		close(s.release)
		s.release = nil
	}
}

// Started returns a channel closed the next time Play begins.
func (s *Sink) Started() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started == nil {
		s.started = make(chan struct{})
	}
	return s.started
}

// Playing reports how many Play calls are in progress.
func (s *Sink) Playing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// PlayedClips returns a copy of the clips played so far.
func (s *Sink) PlayedClips() []audio.Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.Clip(nil), s.Played...)
}

// StopCount returns the number of Stop calls.
func (s *Sink) StopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountStop
}

// ─── Synthesizer ─────────────────────────────────────────────────────────────

// SpeakCall records a single invocation of Speak.
type SpeakCall struct {
	Text     string
	Language string
}

// Synthesizer is a mock implementation of [audio.Synthesizer].
type Synthesizer struct {
	mu sync.Mutex

	// SpeakErr, if non-nil, is returned by Speak.
	SpeakErr error

	// SpeakDuration makes Speak block for this long (or until ctx is done).
	SpeakDuration time.Duration

	// SpeakCalls records every invocation of Speak, in order.
	SpeakCalls []SpeakCall

	// CallCountCancel records how many times Cancel was called.
	CallCountCancel int
}

// Speak implements [audio.Synthesizer].
func (s *Synthesizer) Speak(ctx context.Context, text, language string) error {
	s.mu.Lock()
	s.SpeakCalls = append(s.SpeakCalls, SpeakCall{Text: text, Language: language})
	err, dur := s.SpeakErr, s.SpeakDuration
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if dur <= 0 {
		return nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Cancel implements [audio.Synthesizer].
func (s *Synthesizer) Cancel(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountCancel++
	return nil
}

// Calls returns a copy of the recorded Speak calls.
func (s *Synthesizer) Calls() []SpeakCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SpeakCall(nil), s.SpeakCalls...)
}

// Compile-time interface assertions.
var (
	_ audio.Microphone  = (*Microphone)(nil)
	_ audio.Stream      = (*Stream)(nil)
	_ audio.Sink        = (*Sink)(nil)
	_ audio.Synthesizer = (*Synthesizer)(nil)
)
