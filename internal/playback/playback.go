// Package playback coordinates speech output for one conversation.
//
// A [Player] owns the connection's single persistent [audio.Sink] and its
// local [audio.Synthesizer]. Every utterance goes through [Player.Speak],
// which plays pre-synthesized bytes when the request carries them, otherwise
// asks the remote TTS provider for a clip, and otherwise speaks the text on
// the device.
//
// The first failure of the primary path (an undecodable clip or an
// unavailable TTS backend) latches the player to local synthesis for the
// rest of its life. Once latched, any request with text is spoken locally:
// its clip is ignored and the remote backend is not asked. A clip is still
// tried when there is no text to fall back to.
//
// Speak always settles: when the clip ends, when playback fails, or when the
// settle timeout elapses. The timeout counts as settled, not as a failure.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicesphere/pkg/audio"
	"github.com/MrWong99/voicesphere/pkg/provider/tts"
)

// DefaultSettleTimeout bounds a single Speak call.
const DefaultSettleTimeout = 15 * time.Second

// ErrNoOutput is returned by Speak when neither the primary path nor the
// local synthesizer could produce sound.
var ErrNoOutput = errors.New("playback: no speech output available")

// Fallback reasons passed to the fallback hook.
const (
	ReasonClip      = "clip"
	ReasonRemoteTTS = "remote_tts"
)

// Request is one utterance. It is consumed once and never retried.
type Request struct {
	// Clip is pre-synthesized audio. When non-empty it is played as is.
	Clip audio.Clip

	// Text is spoken when Clip is empty, and used for local fallback when the
	// clip cannot be played.
	Text string

	// Language is the BCP-47 language of Text.
	Language string
}

// Empty reports whether the request has nothing to say.
func (r Request) Empty() bool { return r.Clip.Empty() && r.Text == "" }

// Option configures a [Player].
type Option func(*Player)

// WithRemote sets the remote TTS provider used for text-only requests.
func WithRemote(p tts.Provider) Option {
	return func(pl *Player) { pl.remote = p }
}

// WithSettleTimeout overrides [DefaultSettleTimeout].
func WithSettleTimeout(d time.Duration) Option {
	return func(pl *Player) {
		if d > 0 {
			pl.timeout = d
		}
	}
}

// WithFallbackHook registers fn to be called once when the player latches to
// local synthesis.
func WithFallbackHook(fn func(reason string, err error)) Option {
	return func(pl *Player) { pl.onFallback = fn }
}

// Player is the speech playback coordinator. It is safe for concurrent use;
// at most one utterance is audible at any time.
type Player struct {
	sink       audio.Sink
	local      audio.Synthesizer
	remote     tts.Provider
	timeout    time.Duration
	onFallback func(string, error)

	mu       sync.Mutex
	unlocked bool
	latched  bool
	gen      uint64
	cancel   context.CancelFunc
}

// New returns a Player over sink. local may be nil when the device has no
// synthesizer.
func New(sink audio.Sink, local audio.Synthesizer, opts ...Option) *Player {
	p := &Player{sink: sink, local: local, timeout: DefaultSettleTimeout}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Unlock primes the sink so programmatic playback is allowed. Only the first
// successful call reaches the sink.
func (p *Player) Unlock(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unlocked {
		return nil
	}
	if err := p.sink.Prime(ctx); err != nil {
		return fmt.Errorf("playback: prime sink: %w", err)
	}
	p.unlocked = true
	return nil
}

// Latched reports whether the player has fallen back to local synthesis.
func (p *Player) Latched() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latched
}

// Speaking reports whether an utterance is in progress.
func (p *Player) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Speak plays req and blocks until it settles. It stops any utterance still
// playing first. The returned error is ctx.Err() when ctx ends, [ErrNoOutput]
// (wrapped) when nothing could be played, and nil otherwise.
func (p *Player) Speak(ctx context.Context, req Request) error {
	if req.Empty() {
		return nil
	}
	sctx, gen := p.begin(ctx)
	defer p.end(gen)

	start := time.Now()
	err := p.speak(sctx, req)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(sctx.Err(), context.DeadlineExceeded):
		slog.Warn("playback: settle timeout reached", "timeout", p.timeout)
		p.halt(context.WithoutCancel(ctx))
		return nil
	case sctx.Err() != nil:
		// Superseded by a newer Speak or by Stop.
		return context.Canceled
	default:
		return err
	}
	slog.Debug("playback: settled", "elapsed", time.Since(start))
	return nil
}

func (p *Player) speak(ctx context.Context, req Request) error {
	if req.Text != "" && p.Latched() {
		return p.speakLocal(ctx, req)
	}
	if !req.Clip.Empty() {
		err := p.sink.Play(ctx, req.Clip)
		if err == nil || ctx.Err() != nil {
			return err
		}
		p.latch(ReasonClip, err)
		if req.Text == "" {
			return fmt.Errorf("%w: %w", ErrNoOutput, err)
		}
		return p.speakLocal(ctx, req)
	}

	if remote := p.remoteIfHealthy(); remote != nil {
		clip, err := remote.Synthesize(ctx, req.Text, req.Language)
		if err == nil && !clip.Empty() {
			err = p.sink.Play(ctx, clip)
			if err == nil || ctx.Err() != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = errors.New("empty clip")
		}
		p.latch(ReasonRemoteTTS, err)
	}
	return p.speakLocal(ctx, req)
}

func (p *Player) speakLocal(ctx context.Context, req Request) error {
	if p.local == nil {
		return ErrNoOutput
	}
	if err := p.local.Speak(ctx, req.Text, req.Language); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: local synthesis: %w", ErrNoOutput, err)
	}
	return nil
}

func (p *Player) remoteIfHealthy() tts.Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latched {
		return nil
	}
	return p.remote
}

func (p *Player) latch(reason string, err error) {
	p.mu.Lock()
	first := !p.latched
	p.latched = true
	p.mu.Unlock()
	if !first {
		return
	}
	slog.Warn("playback: primary path failed, using local synthesis for this session",
		"reason", reason, "err", err)
	if p.onFallback != nil {
		p.onFallback(reason, err)
	}
}

// Stop silences any utterance in progress: the sink is paused, rewound and
// re-primed, and local synthesis is cancelled. It is safe to call when idle.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	return p.halt(ctx)
}

func (p *Player) halt(ctx context.Context) error {
	var errs []error
	if err := p.sink.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("playback: stop sink: %w", err))
	}
	if p.local != nil {
		if err := p.local.Cancel(ctx); err != nil {
			errs = append(errs, fmt.Errorf("playback: cancel synthesis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (p *Player) begin(ctx context.Context) (context.Context, uint64) {
	sctx, cancel := context.WithTimeout(ctx, p.timeout)

	p.mu.Lock()
	prev := p.cancel
	p.gen++
	gen := p.gen
	p.cancel = cancel
	p.mu.Unlock()

	if prev != nil {
		prev()
		_ = p.halt(context.WithoutCancel(ctx))
	}
	return sctx, gen
}

func (p *Player) end(gen uint64) {
	p.mu.Lock()
	cancel := p.cancel
	if p.gen == gen {
		p.cancel = nil
	} else {
		cancel = nil
	}
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
