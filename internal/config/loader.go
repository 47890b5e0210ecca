package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"httpapi", "whisper", "openai", "deepgram"},
	"tts":       {"httpapi", "elevenlabs", "openai"},
	"llm":       {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"chat":      {"httpapi", "llm", "rules"},
	"search":    {"httpapi"},
	"translate": {"httpapi", "llm"},
}

// needsBaseURL lists the backends that have no built-in endpoint.
var needsBaseURL = map[string]bool{"httpapi": true, "whisper": true}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. A .env file next to the config is loaded into the environment
// first; variables already set take precedence.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		slog.Debug("config: loaded env file", "path", path)
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: load %q: %w", path, err)
}

// LoadFromReader expands ${VAR} placeholders, decodes a YAML config from r
// and validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${NAME} with the value of the environment variable NAME
// and ${NAME:-fallback} with fallback when NAME is unset or empty. Bare $NAME
// is left alone so secrets containing '$' survive.
func ExpandEnv(b []byte) []byte {
	return envRef.ReplaceAllFunc(b, func(m []byte) []byte {
		sub := envRef.FindSubmatch(m)
		if v := os.Getenv(string(sub[1])); v != "" {
			return []byte(v)
		}
		return sub[3]
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	p := cfg.Providers
	for _, required := range []struct {
		kind  string
		entry ProviderEntry
	}{
		{"stt", p.STT},
		{"chat", p.Chat},
		{"search", p.Search},
	} {
		if !required.entry.Configured() {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", required.kind))
		}
	}
	errs = append(errs, validateEntry("stt", "providers.stt", p.STT)...)
	errs = append(errs, validateEntry("tts", "providers.tts", p.TTS)...)
	errs = append(errs, validateEntry("llm", "providers.llm", p.LLM)...)
	errs = append(errs, validateEntry("chat", "providers.chat", p.Chat)...)
	errs = append(errs, validateEntry("search", "providers.search", p.Search)...)
	errs = append(errs, validateEntry("translate", "providers.translate", p.Translate)...)

	if !p.LLM.Configured() {
		if usesName(p.Chat, "llm") {
			errs = append(errs, errors.New("providers.chat: backend \"llm\" requires providers.llm"))
		}
		if usesName(p.Translate, "llm") {
			errs = append(errs, errors.New("providers.translate: backend \"llm\" requires providers.llm"))
		}
	}
	if !p.TTS.Configured() {
		slog.Warn("providers.tts is not configured; replies will use the browser's local voice")
	}
	if !p.Translate.Configured() {
		slog.Debug("providers.translate is not configured; phrases stay in English")
	}

	// Conversation
	c := cfg.Conversation
	if c.NoiseFloor < 0 || c.NoiseFloor >= 1 {
		errs = append(errs, fmt.Errorf("conversation.noise_floor %.3f is out of range [0, 1)", c.NoiseFloor))
	}
	if c.Smoothing < 0 || c.Smoothing > 1 {
		errs = append(errs, fmt.Errorf("conversation.smoothing %.3f is out of range [0, 1]", c.Smoothing))
	}
	for name, d := range map[string]int64{
		"min_speech":      int64(c.MinSpeech),
		"silence":         int64(c.Silence),
		"sample_interval": int64(c.SampleInterval),
		"echo_guard":      int64(c.EchoGuard),
		"error_revert":    int64(c.ErrorRevert),
		"capture_ceiling": int64(c.CaptureCeiling),
		"settle_timeout":  int64(c.SettleTimeout),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("conversation.%s must not be negative", name))
		}
	}
	if c.HistoryLimit < 0 {
		errs = append(errs, errors.New("conversation.history_limit must not be negative"))
	}
	if c.VoiceNative && usesName(p.Chat, "rules") {
		errs = append(errs, errors.New("conversation.voice_native needs a chat backend that understands audio; \"rules\" only reads text"))
	}
	errs = append(errs, validateTemplates(c.Templates)...)

	// Search
	loc := cfg.Search.Location
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
		errs = append(errs, fmt.Errorf("search.location %.4f,%.4f is not a valid coordinate", loc.Lat, loc.Lon))
	}
	f := cfg.Search.Filters
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax {
		errs = append(errs, errors.New("search.filters.price_min is greater than price_max"))
	}
	if f.TimeMin != nil && f.TimeMax != nil && *f.TimeMin > *f.TimeMax {
		errs = append(errs, errors.New("search.filters.time_min is greater than time_max"))
	}
	if cfg.Search.Cache.TTL < 0 {
		errs = append(errs, errors.New("search.cache.ttl must not be negative"))
	}

	// History
	if cfg.History.PerSession < 0 {
		errs = append(errs, errors.New("history.per_session must not be negative"))
	}
	if cfg.History.PostgresDSN == "" {
		slog.Debug("history.postgres_dsn is empty; conversation history is kept in memory")
	}

	return errors.Join(errs...)
}

// validateEntry checks one provider entry and, recursively, its fallbacks.
func validateEntry(kind, path string, e ProviderEntry) []error {
	var errs []error
	if !e.Configured() {
		if len(e.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks set without a primary name", path))
		}
		return errs
	}
	validateProviderName(kind, e.Name)
	if needsBaseURL[e.Name] && e.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s.base_url is required for %q", path, e.Name))
	}
	if e.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must not be negative", path))
	}
	for i, fb := range e.Fallbacks {
		fbPath := fmt.Sprintf("%s.fallbacks[%d]", path, i)
		if !fb.Configured() {
			errs = append(errs, fmt.Errorf("%s.name is required", fbPath))
			continue
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks cannot be nested", fbPath))
		}
		errs = append(errs, validateEntry(kind, fbPath, fb)...)
	}
	return errs
}

func validateTemplates(t TemplatesConfig) []error {
	var errs []error
	check := func(name, tmpl string, verbs ...string) {
		if tmpl == "" {
			return
		}
		rest := tmpl
		for _, v := range verbs {
			i := strings.Index(rest, v)
			if i < 0 {
				errs = append(errs, fmt.Errorf("conversation.templates.%s must contain %s", name, strings.Join(verbs, " then ")))
				return
			}
			rest = rest[i+len(v):]
		}
	}
	check("searching", t.Searching, "%s")
	check("results_found", t.ResultsFound, "%d", "%s")
	check("no_results", t.NoResults, "%s")
	return errs
}

// usesName reports whether e or any of its fallbacks is the named backend.
func usesName(e ProviderEntry, name string) bool {
	if e.Name == name {
		return true
	}
	return slices.ContainsFunc(e.Fallbacks, func(fb ProviderEntry) bool { return fb.Name == name })
}

// validateProviderName logs a warning if name is not found in the
// [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
