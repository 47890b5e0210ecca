package audio

import "math"

// DefaultLevelGain maps frame RMS onto the [0,1] loudness scale used by the
// energy monitor. Conversational speech at a laptop microphone sits around
// 0.05–0.15 RMS, which lands in the 0.2–0.6 range.
const DefaultLevelGain = 4.0

// RMS returns the root-mean-square energy of 16-bit little-endian PCM,
// normalised to [0,1]. Returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(sampleAt(pcm, i)) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Loudness converts a PCM frame to a loudness value in [0,1] by scaling its
// RMS by gain. A non-positive gain uses [DefaultLevelGain].
func Loudness(pcm []byte, gain float64) float64 {
	if gain <= 0 {
		gain = DefaultLevelGain
	}
	return min(1, RMS(pcm)*gain)
}
