// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Clip: audio.Clip{Data: []byte("mp3"), ContentType: "audio/mpeg"}}
//	clip, _ := p.Synthesize(ctx, "hello", "en")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicesphere/pkg/audio"
	"github.com/MrWong99/voicesphere/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text     string
	Language string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by Synthesize when Err is nil. A zero Clip yields a
	// small default payload.
	Clip audio.Clip

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns Clip, Err.
func (p *Provider) Synthesize(_ context.Context, text, language string) (audio.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Language: language})
	if p.Err != nil {
		return audio.Clip{}, p.Err
	}
	if p.Clip.Empty() {
		return audio.Clip{Data: []byte("mock-audio"), ContentType: "audio/mpeg"}, nil
	}
	return p.Clip, nil
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SynthesizeCall(nil), p.SynthesizeCalls...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
