package audio

import (
	"encoding/binary"
	"errors"
)

const (
	wavHeaderSize = 44
	bitsPerSample = 16
)

// ContentTypeWAV is the MIME type of buffers produced by [EncodeWAV].
const ContentTypeWAV = "audio/wav"

// EncodeWAV wraps raw 16-bit signed little-endian PCM in a RIFF/WAV container.
func EncodeWAV(pcm []byte, f Format) []byte {
	byteRate := f.SampleRate * f.Channels * bitsPerSample / 8
	blockAlign := f.Channels * bitsPerSample / 8

	buf := make([]byte, wavHeaderSize+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[wavHeaderSize:], pcm)
	return buf
}

// DecodeWAV extracts the PCM payload and format from a canonical 44-byte
// header WAV produced by [EncodeWAV] or an equivalent encoder.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < wavHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, errors.New("audio: not a RIFF/WAVE container")
	}
	if binary.LittleEndian.Uint16(data[20:22]) != 1 || binary.LittleEndian.Uint16(data[34:36]) != bitsPerSample {
		return nil, Format{}, errors.New("audio: only 16-bit PCM WAV is supported")
	}
	f := Format{
		Channels:   int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate: int(binary.LittleEndian.Uint32(data[24:28])),
	}
	size := int(binary.LittleEndian.Uint32(data[40:44]))
	if size > len(data)-wavHeaderSize {
		size = len(data) - wavHeaderSize
	}
	return data[wavHeaderSize : wavHeaderSize+size], f, nil
}

// SilentWAV returns a zero-length WAV, used to prime playback sinks.
func SilentWAV() []byte {
	return EncodeWAV(nil, SpeechFormat)
}
