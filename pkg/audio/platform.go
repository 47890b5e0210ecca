// Package audio defines the device capabilities and audio value types used by
// the VoiceSphere conversation controller.
//
// The controller never talks to a microphone or a speaker directly. It depends
// on three narrow capabilities, each implemented by a platform adapter (the
// browser WebSocket adapter in audio/browser is the one that ships):
//
//   - [Microphone]: opens a live capture [Stream] of PCM frames.
//   - [Sink]: a single persistent playback element for pre-synthesized clips.
//   - [Synthesizer]: on-device text-to-speech used as the local fallback.
//
// This package lives under pkg/ because other front-ends (a desktop client, a
// telephony bridge) are expected to implement these interfaces.
package audio

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned by [Microphone.Open] when the user or the
// platform refuses microphone access. It is terminal for the current turn;
// the user has to activate again after granting access.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// ErrStreamClosed is returned when an operation targets a stream or device
// whose underlying connection has gone away.
var ErrStreamClosed = errors.New("audio: stream closed")

// Stream is a live microphone capture opened by [Microphone.Open].
//
// Frames are delivered in capture order on the channel returned by Frames.
// The channel is closed by the implementation when Close is called or the
// underlying device goes away.
type Stream interface {
	// Frames returns the read-only channel of captured frames. It returns the
	// same channel on every call.
	Frames() <-chan AudioFrame

	// Format reports the sample rate and channel count of the frames.
	Format() Format

	// Close stops capture and releases the device tracks. Calling Close more
	// than once is a no-op and returns nil.
	Close() error
}

// Microphone acquires capture streams.
//
// Implementations must allow a new Open as soon as the previous stream has
// been closed; a stale-device error after Close is a bug.
type Microphone interface {
	// Open asks the platform for microphone access and starts a new stream.
	// Returns [ErrPermissionDenied] (possibly wrapped) if access is refused.
	Open(ctx context.Context) (Stream, error)
}

// Sink is the single persistent playback element for one UI session.
//
// Some platforms only permit programmatic playback on an element that was
// touched by a user gesture, so a Sink is created once and primed with
// silence rather than recreated per utterance.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Prime loads a silent payload so later programmatic playback is allowed
	// without another gesture.
	Prime(ctx context.Context) error

	// Play plays clip and blocks until it has finished. It returns a non-nil
	// error if the clip could not be decoded or played. When ctx is done the
	// implementation pauses playback and returns ctx.Err().
	Play(ctx context.Context, clip Clip) error

	// Stop pauses, rewinds and re-primes the element. Stopping an idle sink
	// is a no-op.
	Stop(ctx context.Context) error
}

// Synthesizer is the local, on-device text-to-speech engine.
type Synthesizer interface {
	// Speak synthesizes text in the given BCP-47 language and blocks until the
	// utterance has finished, failed, or ctx is done.
	Speak(ctx context.Context, text, language string) error

	// Cancel silences any utterance in progress. It is a no-op when idle.
	Cancel(ctx context.Context) error
}
