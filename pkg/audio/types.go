package audio

import (
	"fmt"
	"time"
)

// AudioFrame is a single chunk of captured microphone audio.
type AudioFrame struct {
	// Data is signed 16-bit little-endian PCM.
	Data []byte

	// SampleRate in Hz (16000 after the browser adapter normalises input).
	SampleRate int

	// Channels is 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// Buffer is a finalized capture handed to the transcription backend.
// It is immutable once returned by the capture; do not modify Data.
type Buffer struct {
	// Data is the encoded capture (a RIFF/WAV container for PCM input).
	Data []byte

	// ContentType is the MIME type of Data, e.g. "audio/wav".
	ContentType string

	// Format is the PCM format inside the container.
	Format Format

	// Chunks is the number of frames that were accumulated.
	Chunks int

	// Duration is the length of the captured audio.
	Duration time.Duration
}

// Clip is a pre-synthesized utterance ready to be played through a [Sink].
type Clip struct {
	// Data is the encoded audio (mp3, wav, ogg, ...).
	Data []byte

	// ContentType is the MIME type of Data.
	ContentType string
}

// Empty reports whether the clip carries no audio.
func (c Clip) Empty() bool { return len(c.Data) == 0 }
