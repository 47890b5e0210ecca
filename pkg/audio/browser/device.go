package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicesphere/pkg/audio"
)

// ─── Microphone ──────────────────────────────────────────────────────────────

// Open asks the tab for microphone access. The tab answers mic_opened, after
// which binary messages carry audio for the returned stream, or mic_denied,
// which yields [audio.ErrPermissionDenied]. Only one stream may be open at a
// time.
func (c *Conn) Open(ctx context.Context) (audio.Stream, error) {
	c.mu.Lock()
	if c.micBusy {
		c.mu.Unlock()
		return nil, ErrMicrophoneBusy
	}
	c.micBusy = true
	c.mu.Unlock()

	reply, err := c.request(ctx, Message{Type: TypeMicOpen})
	if err != nil {
		if ctx.Err() != nil && reply.ID != "" {
			c.abandonMic(reply.ID)
		} else {
			c.releaseMic(nil)
		}
		return nil, err
	}

	switch {
	case reply.Type == TypeMicDenied:
		c.releaseMic(nil)
		reason := reply.Error
		if reason == "" {
			reason = "denied by user"
		}
		return nil, fmt.Errorf("%w: %s", audio.ErrPermissionDenied, reason)
	case reply.Error != "":
		c.releaseMic(nil)
		c.notify(Message{Type: TypeMicClose, ID: reply.ID})
		return nil, fmt.Errorf("browser: open microphone: %s", reply.Error)
	}

	c.mu.Lock()
	s := c.mic
	c.mu.Unlock()
	if s == nil || s.id != reply.ID {
		c.releaseMic(nil)
		return nil, c.closedErr()
	}
	return s, nil
}

// installMic is called by the read loop on mic_opened, before the reply is
// delivered, so frames following the reply always find their stream.
func (c *Conn) installMic(m Message) error {
	c.mu.Lock()
	format, codec := c.format, c.codec
	c.mu.Unlock()
	if m.SampleRate > 0 {
		format.SampleRate = m.SampleRate
	}
	if m.Channels > 0 {
		format.Channels = m.Channels
	}
	if m.Codec != "" {
		codec = m.Codec
	}

	s := &micStream{
		conn:   c,
		id:     m.ID,
		format: format,
		frames: make(chan audio.AudioFrame, frameBuffer),
	}
	switch codec {
	case CodecPCM:
	case CodecOpus:
		dec, err := newOpusDecoder(format)
		if err != nil {
			return err
		}
		s.opus = dec
	default:
		return fmt.Errorf("browser: unsupported codec %q", codec)
	}

	c.mu.Lock()
	c.mic = s
	c.mu.Unlock()
	return nil
}

// abandonMic cleans up after Open gave up waiting on request id.
func (c *Conn) abandonMic(id string) {
	c.mu.Lock()
	s := c.mic
	c.mu.Unlock()
	if s != nil && s.id == id {
		_ = s.Close()
		return
	}
	c.releaseMic(nil)
	c.notify(Message{Type: TypeMicClose, ID: id})
}

// releaseMic clears the busy flag. With s set it only does so while s is
// still the open stream.
func (c *Conn) releaseMic(s *micStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s != nil {
		if c.mic != s {
			return
		}
		c.mic = nil
	}
	c.micBusy = false
}

func (c *Conn) handleAudio(data []byte) {
	c.mu.Lock()
	s := c.mic
	c.mu.Unlock()
	if s == nil {
		return
	}
	s.push(data)
}

type micStream struct {
	conn   *Conn
	id     string
	format audio.Format
	opus   *opusDecoder
	frames chan audio.AudioFrame

	mu      sync.Mutex
	closed  bool
	offset  time.Duration
	dropped int
}

func (s *micStream) Frames() <-chan audio.AudioFrame { return s.frames }
func (s *micStream) Format() audio.Format            { return s.format }

func (s *micStream) Close() error {
	if !s.closeFrames() {
		return nil
	}
	s.conn.releaseMic(s)
	s.conn.notify(Message{Type: TypeMicClose, ID: s.id})
	return nil
}

// closeFrames closes the frame channel once and reports whether this call
// did it.
func (s *micStream) closeFrames() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.frames)
	if s.dropped > 0 {
		slog.Warn("browser: dropped microphone frames", "stream", s.id, "count", s.dropped)
	}
	return true
}

func (s *micStream) push(data []byte) {
	pcm := data
	if s.opus != nil {
		var err error
		if pcm, err = s.opus.decode(data); err != nil {
			slog.Debug("browser: skipping bad packet", "stream", s.id, "err", err)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	frame := audio.AudioFrame{
		Data:       pcm,
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
		Timestamp:  s.offset,
	}
	s.offset += frame.Duration()
	select {
	case s.frames <- frame:
	default:
		s.dropped++
	}
}

// ─── Sink ────────────────────────────────────────────────────────────────────

// Prime loads a silent WAV into the tab's audio element.
func (c *Conn) Prime(ctx context.Context) error {
	return c.Send(ctx, Message{
		Type:        TypePlaybackPrime,
		Audio:       audio.SilentWAV(),
		ContentType: "audio/wav",
	})
}

// Play sends clip to the tab and waits for playback_ended.
func (c *Conn) Play(ctx context.Context, clip audio.Clip) error {
	if clip.Empty() {
		return errors.New("browser: play: empty clip")
	}
	reply, err := c.request(ctx, Message{
		Type:        TypePlay,
		Audio:       clip.Data,
		ContentType: clip.ContentType,
	})
	if err != nil {
		if ctx.Err() != nil {
			c.notify(Message{Type: TypePlaybackStop, ID: reply.ID})
		}
		return err
	}
	if reply.Type == TypePlaybackError {
		return fmt.Errorf("browser: playback: %s", reply.Error)
	}
	return nil
}

// Stop pauses and re-primes the tab's audio element. A Play waiting on it
// returns nil.
func (c *Conn) Stop(ctx context.Context) error {
	err := c.Send(ctx, Message{Type: TypePlaybackStop})
	c.settle(TypePlay, Message{Type: TypePlaybackEnded})
	return err
}

// ─── Synthesizer ─────────────────────────────────────────────────────────────

// Speak asks the tab to say text with the voice [SelectVoice] picks for
// language among the voices the tab reported.
func (c *Conn) Speak(ctx context.Context, text, language string) error {
	c.mu.Lock()
	voice, ok := SelectVoice(c.voices, language)
	c.mu.Unlock()

	m := Message{Type: TypeSpeakLocal, Text: text, Language: language}
	if ok {
		m.Voice = voice.Name
		if voice.Lang != "" {
			m.Language = voice.Lang
		}
	}

	reply, err := c.request(ctx, m)
	if err != nil {
		if ctx.Err() != nil {
			c.notify(Message{Type: TypeSpeakCancel, ID: reply.ID})
		}
		return err
	}
	if reply.Type == TypeSpeakError {
		return fmt.Errorf("browser: speak: %s", reply.Error)
	}
	return nil
}

// Cancel silences the tab's speech synthesis. A Speak waiting on it returns
// nil.
func (c *Conn) Cancel(ctx context.Context) error {
	err := c.Send(ctx, Message{Type: TypeSpeakCancel})
	c.settle(TypeSpeakLocal, Message{Type: TypeSpeakEnded})
	return err
}
