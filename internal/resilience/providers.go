package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/voicesphere/pkg/audio"
	"github.com/MrWong99/voicesphere/pkg/provider/chat"
	"github.com/MrWong99/voicesphere/pkg/provider/llm"
	"github.com/MrWong99/voicesphere/pkg/provider/stt"
	"github.com/MrWong99/voicesphere/pkg/provider/tts"
)

// ─── STT ──────────────────────────────────────────────────────────────────────

// STTFallback implements [stt.Provider] over several transcription backends.
// [stt.ErrNoSpeech] is a valid answer and never triggers failover.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns an STTFallback with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	cfg.CircuitBreaker.Neutral = anyOf(cfg.CircuitBreaker.Neutral, stt.ErrNoSpeech)
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.group.AddFallback(name, p) }

// Transcribe implements [stt.Provider].
func (f *STTFallback) Transcribe(ctx context.Context, buf audio.Buffer, language string) (stt.Transcript, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, buf, language)
	})
}

// ─── TTS ──────────────────────────────────────────────────────────────────────

// TTSFallback implements [tts.Provider] over several synthesis backends.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback returns a TTSFallback with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	cfg.CircuitBreaker.Neutral = anyOf(cfg.CircuitBreaker.Neutral, tts.ErrEmptyText)
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) { f.group.AddFallback(name, p) }

// Synthesize implements [tts.Provider]. A backend that answers with an empty
// clip counts as failed.
func (f *TTSFallback) Synthesize(ctx context.Context, text, language string) (audio.Clip, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p tts.Provider) (audio.Clip, error) {
		clip, err := p.Synthesize(ctx, text, language)
		if err == nil && clip.Empty() {
			return clip, errEmptyClip
		}
		return clip, err
	})
}

var errEmptyClip = errors.New("resilience: backend returned an empty clip")

// ─── Chat ─────────────────────────────────────────────────────────────────────

// ChatFallback implements [chat.Provider] over several interpretation
// backends. A typical chain ends with the offline rule-based interpreter.
type ChatFallback struct {
	group *FallbackGroup[chat.Provider]
}

var _ chat.Provider = (*ChatFallback)(nil)

// NewChatFallback returns a ChatFallback with primary as the preferred backend.
func NewChatFallback(primary chat.Provider, primaryName string, cfg FallbackConfig) *ChatFallback {
	if cfg.Kind == "" {
		cfg.Kind = "chat"
	}
	return &ChatFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *ChatFallback) AddFallback(name string, p chat.Provider) { f.group.AddFallback(name, p) }

// Interpret implements [chat.Provider].
func (f *ChatFallback) Interpret(ctx context.Context, req chat.Request) (chat.Interpretation, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p chat.Provider) (chat.Interpretation, error) {
		return p.Interpret(ctx, req)
	})
}

// ─── LLM ──────────────────────────────────────────────────────────────────────

// LLMFallback implements [llm.Provider] over several model backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns an LLMFallback with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.Kind == "" {
		cfg.Kind = "llm"
	}
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.group.AddFallback(name, p) }

// Complete implements [llm.Provider].
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// anyOf extends a neutral-error predicate with sentinels.
func anyOf(base func(error) bool, sentinels ...error) func(error) bool {
	return func(err error) bool {
		for _, s := range sentinels {
			if errors.Is(err, s) {
				return true
			}
		}
		return base != nil && base(err)
	}
}
