package browser

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/voicesphere/pkg/audio"
)

// maxOpusFrameMs is the longest frame an Opus packet may carry.
const maxOpusFrameMs = 120

// opusDecoder decodes one microphone stream. Decoder state carries across
// packets, so each stream gets its own.
type opusDecoder struct {
	dec       *gopus.Decoder
	frameSize int
}

func newOpusDecoder(f audio.Format) (*opusDecoder, error) {
	switch f.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("browser: opus does not support %d Hz", f.SampleRate)
	}
	dec, err := gopus.NewDecoder(f.SampleRate, f.Channels)
	if err != nil {
		return nil, fmt.Errorf("browser: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec, frameSize: f.SampleRate * maxOpusFrameMs / 1000}, nil
}

// decode turns one Opus packet into interleaved little-endian PCM16.
func (d *opusDecoder) decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, d.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("browser: opus decode: %w", err)
	}
	return audio.Int16sToBytes(pcm), nil
}
