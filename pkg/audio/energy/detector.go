// Package energy implements the loudness-based end-of-speech heuristic used
// while the conversation controller is listening.
//
// [Detector] is the pure state machine: feed it (timestamp, loudness) pairs
// and it reports when the user has stopped talking. [Monitor] drives a
// Detector from a ticker over a live level source and publishes the level on
// every tick for UI feedback.
//
// The heuristic has two rules:
//
//   - Arming: silence-triggered stop stays disabled until an above-floor tick
//     arrives at least MinSpeech after the start of an unbroken above-floor
//     run. A cough or a door slam cannot arm it, and nothing fires before the
//     user has said anything.
//   - Trigger: once armed, loudness at or under the floor continuously for
//     Silence fires end-of-speech exactly once. Any tick above the floor
//     resets the silence timer.
package energy

import "time"

// Default thresholds.
const (
	DefaultNoiseFloor = 0.08
	DefaultMinSpeech  = 400 * time.Millisecond
	DefaultSilence    = 1500 * time.Millisecond
)

// Thresholds configures a [Detector]. Zero fields take the defaults.
type Thresholds struct {
	// NoiseFloor is the loudness at or under which a tick counts as silence.
	NoiseFloor float64

	// MinSpeech is the continuous above-floor time required to arm.
	MinSpeech time.Duration

	// Silence is the continuous at-or-under-floor time that triggers once armed.
	Silence time.Duration
}

func (t Thresholds) withDefaults() Thresholds {
	if t.NoiseFloor <= 0 {
		t.NoiseFloor = DefaultNoiseFloor
	}
	if t.MinSpeech <= 0 {
		t.MinSpeech = DefaultMinSpeech
	}
	if t.Silence <= 0 {
		t.Silence = DefaultSilence
	}
	return t
}

// SilenceState is the detector's mutable state. Zero timestamps mean "not
// currently counting".
type SilenceState struct {
	SpeakingSince             time.Time
	HasCrossedSpeechThreshold bool
	SilenceSince              time.Time
}

// Detector is the end-of-speech state machine. It is not safe for concurrent
// use; a [Monitor] owns one exclusively.
type Detector struct {
	th    Thresholds
	state SilenceState
	fired bool
}

// NewDetector returns a Detector with th (zero fields defaulted).
func NewDetector(th Thresholds) *Detector {
	return &Detector{th: th.withDefaults()}
}

// Thresholds returns the effective thresholds.
func (d *Detector) Thresholds() Thresholds { return d.th }

// Reset clears all state so the detector can be reused for a new capture.
func (d *Detector) Reset() {
	d.state = SilenceState{}
	d.fired = false
}

// State returns a copy of the current state.
func (d *Detector) State() SilenceState { return d.state }

// Armed reports whether sustained speech has been observed.
func (d *Detector) Armed() bool { return d.state.HasCrossedSpeechThreshold }

// Fired reports whether the trigger has already fired.
func (d *Detector) Fired() bool { return d.fired }

// Step advances the state machine with one loudness sample taken at now.
// It returns true on exactly one call: the tick at which end-of-speech is
// detected. Every later call returns false until [Detector.Reset].
func (d *Detector) Step(now time.Time, v float64) bool {
	if d.fired {
		return false
	}

	if v > d.th.NoiseFloor {
		d.state.SilenceSince = time.Time{}
		if d.state.SpeakingSince.IsZero() {
			d.state.SpeakingSince = now
		}
		if !d.state.HasCrossedSpeechThreshold && now.Sub(d.state.SpeakingSince) >= d.th.MinSpeech {
			d.state.HasCrossedSpeechThreshold = true
		}
		return false
	}

	// At or under the floor. Arming only happens on an above-floor tick, so a
	// run that stops short of MinSpeech is discarded here.
	d.state.SpeakingSince = time.Time{}
	if !d.state.HasCrossedSpeechThreshold {
		return false
	}
	if d.state.SilenceSince.IsZero() {
		d.state.SilenceSince = now
		return false
	}
	if now.Sub(d.state.SilenceSince) >= d.th.Silence {
		d.fired = true
		return true
	}
	return false
}
