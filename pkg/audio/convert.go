package audio

import (
	"log/slog"
	"sync"
)

// SpeechFormat is the PCM format the capture pipeline works in: 16 kHz mono,
// which every supported transcription backend accepts.
var SpeechFormat = Format{SampleRate: 16000, Channels: 1}

// Normalizer converts incoming frames to [SpeechFormat]. It logs once on the
// first format mismatch and once on the first malformed frame.
// Create one per stream; not designed for shared use across goroutines.
type Normalizer struct {
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Normalize converts frame to 16 kHz mono. Frames already in that format are
// returned unchanged. Frames with an odd byte count are dropped (nil Data).
func (n *Normalizer) Normalize(frame AudioFrame) AudioFrame {
	if len(frame.Data)%2 != 0 {
		n.warnedCorrupt.Do(func() {
			slog.Warn("audio normalizer: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"format", Format{frame.SampleRate, frame.Channels},
			)
		})
		return AudioFrame{SampleRate: SpeechFormat.SampleRate, Channels: 1, Timestamp: frame.Timestamp}
	}
	if frame.SampleRate == SpeechFormat.SampleRate && frame.Channels == SpeechFormat.Channels {
		return frame
	}

	n.warnedMismatch.Do(func() {
		slog.Debug("audio normalizer: converting capture format",
			"from", Format{frame.SampleRate, frame.Channels},
			"to", SpeechFormat,
		)
	})

	pcm := frame.Data
	if frame.Channels == 2 {
		pcm = StereoToMono(pcm)
	}
	pcm = ResampleMono16(pcm, frame.SampleRate, SpeechFormat.SampleRate)
	return AudioFrame{
		Data:       pcm,
		SampleRate: SpeechFormat.SampleRate,
		Channels:   1,
		Timestamp:  frame.Timestamp,
	}
}

// StereoToMono averages L+R per interleaved stereo frame (4 bytes).
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(sampleAt(pcm, i*2))
		r := int32(sampleAt(pcm, i*2+1))
		putSample(out, i, clamp16((l+r)/2))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. If the rates match, or either is not positive, pcm is
// returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sampleAt(pcm, idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sampleAt(pcm, idx+1)
		}
		putSample(out, i, int32(float64(s0)*(1-frac)+float64(s1)*frac))
	}
	return out
}

// Int16sToBytes encodes samples as little-endian PCM.
func Int16sToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		putSample(out, i, int32(s))
	}
	return out
}

// BytesToInt16s decodes little-endian PCM. A trailing odd byte is ignored.
func BytesToInt16s(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = sampleAt(pcm, i)
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

func putSample(pcm []byte, i int, v int32) {
	s := clamp16(v)
	pcm[i*2] = byte(s)
	pcm[i*2+1] = byte(s >> 8)
}

func clamp16(v int32) int32 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}
