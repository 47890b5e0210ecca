package main

import (
	"testing"

	"github.com/MrWong99/voicesphere/internal/config"
	"github.com/MrWong99/voicesphere/internal/observe"
	"github.com/MrWong99/voicesphere/internal/resilience"
)

func newRegistry(cfg *config.Config) *config.Registry {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg, observe.DefaultMetrics())
	return reg
}

func TestBuildProviders(t *testing.T) {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{
				Name:    "httpapi",
				BaseURL: "http://localhost:9000",
				Fallbacks: []config.ProviderEntry{
					{Name: "whisper", BaseURL: "http://localhost:9001"},
					{Name: "nope"},
				},
			},
			Chat:      config.ProviderEntry{Name: "rules", Options: map[string]any{"threshold": 0.7}},
			Search:    config.ProviderEntry{Name: "httpapi", BaseURL: "http://localhost:8000"},
			Translate: config.ProviderEntry{Name: "httpapi", BaseURL: "http://localhost:8001"},
		},
	}
	ps, err := buildProviders(cfg, newRegistry(cfg), observe.DefaultMetrics())
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if _, ok := ps.STT.(*resilience.STTFallback); !ok {
		t.Errorf("STT = %T, want a fallback chain", ps.STT)
	}
	if ps.Chat == nil || ps.Search == nil || ps.Translate == nil {
		t.Errorf("providers = %+v, want chat, search and translate", ps)
	}
	if ps.TTS != nil {
		t.Errorf("TTS = %T, want nil when unconfigured", ps.TTS)
	}
}

func TestBuildProviders_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ProvidersConfig
	}{
		{
			name: "unknown primary",
			cfg:  config.ProvidersConfig{STT: config.ProviderEntry{Name: "carrier-pigeon"}},
		},
		{
			name: "httpapi without base url",
			cfg:  config.ProvidersConfig{Search: config.ProviderEntry{Name: "httpapi"}},
		},
		{
			name: "llm chat without llm",
			cfg:  config.ProvidersConfig{Chat: config.ProviderEntry{Name: "llm"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Providers: tt.cfg}
			if _, err := buildProviders(cfg, newRegistry(cfg), observe.DefaultMetrics()); err == nil {
				t.Fatal("buildProviders succeeded")
			}
		})
	}
}

func TestOptionHelpers(t *testing.T) {
	opts := map[string]any{
		"name":         "x",
		"count":        3,
		"ratio":        0.5,
		"numeric":      "1.25",
		"stop_phrases": []any{"bye", 7, "stop"},
		"voice":        "alloy",
		"voices":       map[string]any{"de": "onyx", "fr": 1},
	}

	if got := optString(opts, "name"); got != "x" {
		t.Errorf("optString = %q", got)
	}
	if got := optString(opts, "count"); got != "" {
		t.Errorf("optString(non-string) = %q, want empty", got)
	}
	if got := optString(nil, "name"); got != "" {
		t.Errorf("optString(nil) = %q", got)
	}

	for key, want := range map[string]float64{"count": 3, "ratio": 0.5, "numeric": 1.25} {
		if got, ok := optFloat(opts, key); !ok || got != want {
			t.Errorf("optFloat(%q) = %v, %v; want %v", key, got, ok, want)
		}
	}
	if _, ok := optFloat(opts, "name"); ok {
		t.Error("optFloat(non-numeric) reported ok")
	}

	phrases := optStrings(opts, "stop_phrases")
	if len(phrases) != 2 || phrases[0] != "bye" || phrases[1] != "stop" {
		t.Errorf("optStrings = %v", phrases)
	}

	v := optVoices(opts)
	if v["de"] != "onyx" || v[""] != "alloy" || len(v) != 2 {
		t.Errorf("optVoices = %v", v)
	}
}

func TestHTTPClient(t *testing.T) {
	if c := httpClient(config.ProviderEntry{}); c != nil {
		t.Error("httpClient without timeout should keep the backend default")
	}
	c := httpClient(config.ProviderEntry{Timeout: 3e9})
	if c == nil || c.Timeout != 3e9 {
		t.Fatalf("httpClient = %+v", c)
	}
}
