// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (e.g., a hosted
// transcription endpoint, OpenAI Whisper, Deepgram, or a local whisper.cpp
// server). The conversation controller hands it one finalized utterance per
// turn and receives the recognized text together with the detected language.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/voicesphere/pkg/audio"
)

// ErrNoSpeech is returned when the backend recognized no words in the audio.
// It is a distinct, non-fatal outcome: callers treat it like an empty capture
// rather than a failure.
var ErrNoSpeech = errors.New("stt: no speech detected")

// Transcript is the result of one transcription request.
type Transcript struct {
	// Text is the recognized utterance, trimmed of surrounding whitespace.
	Text string

	// Language is the detected (or hinted) language code, e.g. "en" or "ar".
	Language string

	// Confidence is the overall confidence score (0.0–1.0). Zero if the
	// provider does not report one.
	Confidence float64

	// Duration is the length of the transcribed audio, when reported.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognizes the speech in buf. language is a hint; an empty
	// string lets the backend auto-detect.
	//
	// Returns ErrNoSpeech (possibly wrapped) when the transcript is empty.
	Transcribe(ctx context.Context, buf audio.Buffer, language string) (Transcript, error)
}

// Finish trims t.Text, fills an empty Language from fallback and maps an
// empty transcript to ErrNoSpeech. Backends call it on their decoded result.
func Finish(t Transcript, fallback string) (Transcript, error) {
	t.Text = strings.TrimSpace(t.Text)
	if t.Language == "" {
		t.Language = fallback
	}
	if t.Text == "" {
		return t, ErrNoSpeech
	}
	return t, nil
}
