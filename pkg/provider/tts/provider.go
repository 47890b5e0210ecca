// Package tts defines the Provider interface for remote Text-to-Speech
// backends.
//
// A TTS provider wraps a speech synthesis service (e.g., the food-search
// backend's /api/tts endpoint, ElevenLabs, or OpenAI) and returns one
// complete, playable clip per utterance. The playback coordinator sends the
// clip to the browser sink; when a provider fails, playback latches to the
// browser's local synthesizer for the rest of the session.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/voicesphere/pkg/audio"
)

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: empty text")

// Provider is the abstraction over any remote TTS backend.
type Provider interface {
	// Synthesize renders text in the given language (a short code such as
	// "en" or "ar"; empty means the provider default) and returns the encoded
	// clip with its MIME type.
	//
	// Returns an error if the backend is unreachable, answers with an error,
	// or returns no audio. Callers treat any error as "primary path failed".
	Synthesize(ctx context.Context, text, language string) (audio.Clip, error)
}

// Voices maps language prefixes to provider voice identifiers. The empty
// key holds the default voice.
type Voices map[string]string

// For returns the voice for language: an exact match first, then the
// primary subtag ("ar" for "ar-QA"), then the default.
func (v Voices) For(language string) string {
	if id, ok := v[language]; ok && language != "" {
		return id
	}
	if base, _, ok := strings.Cut(language, "-"); ok {
		if id, ok := v[base]; ok {
			return id
		}
	}
	return v[""]
}
