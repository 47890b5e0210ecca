package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/voicesphere/internal/app"
	"github.com/MrWong99/voicesphere/internal/config"
	"github.com/MrWong99/voicesphere/internal/observe"
	"github.com/MrWong99/voicesphere/internal/resilience"
	"github.com/MrWong99/voicesphere/pkg/provider/chat"
	chathttp "github.com/MrWong99/voicesphere/pkg/provider/chat/httpapi"
	chatllm "github.com/MrWong99/voicesphere/pkg/provider/chat/llm"
	"github.com/MrWong99/voicesphere/pkg/provider/chat/rules"
	"github.com/MrWong99/voicesphere/pkg/provider/llm"
	"github.com/MrWong99/voicesphere/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/voicesphere/pkg/provider/llm/openai"
	"github.com/MrWong99/voicesphere/pkg/provider/search"
	searchhttp "github.com/MrWong99/voicesphere/pkg/provider/search/httpapi"
	"github.com/MrWong99/voicesphere/pkg/provider/stt"
	"github.com/MrWong99/voicesphere/pkg/provider/stt/deepgram"
	stthttp "github.com/MrWong99/voicesphere/pkg/provider/stt/httpapi"
	sttopenai "github.com/MrWong99/voicesphere/pkg/provider/stt/openai"
	"github.com/MrWong99/voicesphere/pkg/provider/stt/whisper"
	"github.com/MrWong99/voicesphere/pkg/provider/translate"
	translatehttp "github.com/MrWong99/voicesphere/pkg/provider/translate/httpapi"
	translatellm "github.com/MrWong99/voicesphere/pkg/provider/translate/llm"
	"github.com/MrWong99/voicesphere/pkg/provider/tts"
	"github.com/MrWong99/voicesphere/pkg/provider/tts/elevenlabs"
	ttshttp "github.com/MrWong99/voicesphere/pkg/provider/tts/httpapi"
	ttsopenai "github.com/MrWong99/voicesphere/pkg/provider/tts/openai"
)

// Circuit breaker settings shared by every fallback chain.
const (
	breakerMaxFailures  = 3
	breakerResetTimeout = 30 * time.Second
	breakerHalfOpenMax  = 1
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages. The llm-backed chat and translate
// factories build their model from providers.llm.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config, metrics *observe.Metrics) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		if entry.Timeout > 0 {
			opts = append(opts, llmopenai.WithTimeout(entry.Timeout))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other vendor goes through any-llm-go. openai keeps the native
	// SDK for its enforced JSON mode.
	for _, providerName := range anyllm.Backends() {
		if providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && !anyllm.IsLocal(providerName) {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("httpapi", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []stthttp.Option
		if entry.Timeout > 0 {
			opts = append(opts, stthttp.WithTimeout(entry.Timeout))
		}
		return stthttp.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if c := httpClient(entry); c != nil {
			opts = append(opts, whisper.WithHTTPClient(c))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, sttopenai.WithModel(entry.Model))
		}
		if entry.Timeout > 0 {
			opts = append(opts, sttopenai.WithTimeout(entry.Timeout))
		}
		return sttopenai.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("httpapi", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttshttp.Option
		if c := httpClient(entry); c != nil {
			opts = append(opts, ttshttp.WithHTTPClient(c))
		}
		return ttshttp.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if v := optVoices(entry.Options); len(v) > 0 {
			opts = append(opts, elevenlabs.WithVoices(v))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithEndpointFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, ttsopenai.WithModel(entry.Model))
		}
		if v := optVoices(entry.Options); len(v) > 0 {
			opts = append(opts, ttsopenai.WithVoices(v))
		}
		if entry.Timeout > 0 {
			opts = append(opts, ttsopenai.WithTimeout(entry.Timeout))
		}
		return ttsopenai.New(entry.APIKey, opts...)
	})

	// ── Chat ──────────────────────────────────────────────────────────────────

	reg.RegisterChat("httpapi", func(entry config.ProviderEntry) (chat.Provider, error) {
		var opts []chathttp.Option
		if c := httpClient(entry); c != nil {
			opts = append(opts, chathttp.WithHTTPClient(c))
		}
		return chathttp.New(entry.BaseURL, opts...)
	})

	reg.RegisterChat("llm", func(entry config.ProviderEntry) (chat.Provider, error) {
		model, err := buildLLM(cfg, reg, metrics)
		if err != nil {
			return nil, err
		}
		opts := []chatllm.Option{chatllm.WithSystemPrompt(optString(entry.Options, "system_prompt"))}
		if t, ok := optFloat(entry.Options, "temperature"); ok {
			opts = append(opts, chatllm.WithTemperature(t))
		}
		if n, ok := optFloat(entry.Options, "max_history"); ok {
			opts = append(opts, chatllm.WithMaxHistory(int(n)))
		}
		return chatllm.New(model, opts...)
	})

	reg.RegisterChat("rules", func(entry config.ProviderEntry) (chat.Provider, error) {
		var opts []rules.Option
		if phrases := optStrings(entry.Options, "stop_phrases"); len(phrases) > 0 {
			opts = append(opts, rules.WithStopPhrases(phrases))
		}
		if t, ok := optFloat(entry.Options, "threshold"); ok {
			opts = append(opts, rules.WithThreshold(t))
		}
		return rules.New(opts...), nil
	})

	// ── Search ────────────────────────────────────────────────────────────────

	reg.RegisterSearch("httpapi", func(entry config.ProviderEntry) (search.Provider, error) {
		var opts []searchhttp.Option
		if c := httpClient(entry); c != nil {
			opts = append(opts, searchhttp.WithHTTPClient(c))
		}
		return searchhttp.New(entry.BaseURL, opts...)
	})

	// ── Translate ─────────────────────────────────────────────────────────────

	reg.RegisterTranslate("httpapi", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []translatehttp.Option
		if c := httpClient(entry); c != nil {
			opts = append(opts, translatehttp.WithHTTPClient(c))
		}
		return translatehttp.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranslate("llm", func(config.ProviderEntry) (translate.Provider, error) {
		model, err := buildLLM(cfg, reg, metrics)
		if err != nil {
			return nil, err
		}
		return translatellm.New(model)
	})

	for _, kind := range []string{"stt", "tts", "llm", "chat", "search", "translate"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// ── Building ──────────────────────────────────────────────────────────────────

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// Entries with fallbacks are wrapped in a resilience chain.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}

	var err error
	if e := cfg.Providers.STT; e.Configured() {
		ps.STT, err = buildChain(e, "stt", reg.CreateSTT, func(p stt.Provider) fallbackChain[stt.Provider] {
			return resilience.NewSTTFallback(p, e.Name, fallbackConfig(metrics, "stt"))
		})
		if err != nil {
			return nil, err
		}
	}

	if e := cfg.Providers.TTS; e.Configured() {
		ps.TTS, err = buildChain(e, "tts", reg.CreateTTS, func(p tts.Provider) fallbackChain[tts.Provider] {
			return resilience.NewTTSFallback(p, e.Name, fallbackConfig(metrics, "tts"))
		})
		if err != nil {
			return nil, err
		}
	}

	if e := cfg.Providers.Chat; e.Configured() {
		ps.Chat, err = buildChain(e, "chat", reg.CreateChat, func(p chat.Provider) fallbackChain[chat.Provider] {
			return resilience.NewChatFallback(p, e.Name, fallbackConfig(metrics, "chat"))
		})
		if err != nil {
			return nil, err
		}
	}

	if e := cfg.Providers.Search; e.Configured() {
		if len(e.Fallbacks) > 0 {
			slog.Warn("search fallbacks are not supported; using the primary only", "name", e.Name)
		}
		if ps.Search, err = reg.CreateSearch(e); err != nil {
			return nil, fmt.Errorf("create search provider %q: %w", e.Name, err)
		}
		slog.Info("provider created", "kind", "search", "name", e.Name)
	}

	if e := cfg.Providers.Translate; e.Configured() {
		if len(e.Fallbacks) > 0 {
			slog.Warn("translate fallbacks are not supported; using the primary only", "name", e.Name)
		}
		p, err := reg.CreateTranslate(e)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("translate provider not available; summaries stay in English", "name", e.Name)
		} else if err != nil {
			return nil, fmt.Errorf("create translate provider %q: %w", e.Name, err)
		} else {
			ps.Translate = p
			slog.Info("provider created", "kind", "translate", "name", e.Name)
		}
	}

	return ps, nil
}

// buildLLM creates the providers.llm entry, with its fallback chain.
func buildLLM(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (llm.Provider, error) {
	e := cfg.Providers.LLM
	if !e.Configured() {
		return nil, errors.New("providers.llm is not configured")
	}
	return buildChain(e, "llm", reg.CreateLLM, func(p llm.Provider) fallbackChain[llm.Provider] {
		return resilience.NewLLMFallback(p, e.Name, fallbackConfig(metrics, "llm"))
	})
}

func fallbackConfig(metrics *observe.Metrics, kind string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		Kind:    kind,
		Metrics: metrics,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  breakerMaxFailures,
			ResetTimeout: breakerResetTimeout,
			HalfOpenMax:  breakerHalfOpenMax,
		},
	}
}

// fallbackChain is implemented by the resilience wrappers. Every wrapper
// also satisfies the provider interface it wraps.
type fallbackChain[T any] interface {
	AddFallback(name string, p T)
}

// buildChain creates e and, when it lists fallbacks, wraps it with wrap and
// adds every fallback that can be created. A fallback that fails to build is
// logged and skipped; the primary must succeed.
func buildChain[T any](e config.ProviderEntry, kind string, create func(config.ProviderEntry) (T, error), wrap func(T) fallbackChain[T]) (T, error) {
	primary, err := create(e)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("create %s provider %q: %w", kind, e.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", e.Name)
	if len(e.Fallbacks) == 0 {
		return primary, nil
	}

	chain := wrap(primary)
	for i, fe := range e.Fallbacks {
		fb, err := create(fe)
		if err != nil {
			slog.Warn("skipping fallback provider", "kind", kind, "index", i, "name", fe.Name, "err", err)
			continue
		}
		chain.AddFallback(fe.Name, fb)
		slog.Info("fallback provider added", "kind", kind, "name", fe.Name, "after", e.Name)
	}
	return any(chain).(T), nil
}

// ── Option helpers ────────────────────────────────────────────────────────────

// httpClient returns a traced client honouring entry.Timeout, or nil to keep
// the backend's own client.
func httpClient(entry config.ProviderEntry) *http.Client {
	if entry.Timeout <= 0 {
		return nil
	}
	return &http.Client{
		Timeout:   entry.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// optString extracts a string value from a provider options map.
// Returns "" if the key is missing or not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optFloat extracts a number. YAML decodes integers as int, so both are
// accepted, as are numeric strings from ${VAR} expansion.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// optStrings extracts a list of strings, skipping non-string items.
func optStrings(opts map[string]any, key string) []string {
	items, ok := opts[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// optVoices reads the "voices" map (language prefix → voice id) and the
// "voice" default.
func optVoices(opts map[string]any) tts.Voices {
	v := tts.Voices{}
	if m, ok := opts["voices"].(map[string]any); ok {
		for lang, id := range m {
			if s, ok := id.(string); ok {
				v[lang] = s
			}
		}
	}
	if def := optString(opts, "voice"); def != "" {
		v[""] = def
	}
	return v
}
