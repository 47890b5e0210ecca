// Package openai provides a TTS provider backed by the OpenAI Audio Speech
// API (tts-1, tts-1-hd, gpt-4o-mini-tts).
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/voicesphere/pkg/audio"
	"github.com/MrWong99/voicesphere/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*config)

type config struct {
	baseURL string
	model   string
	voices  tts.Voices
	timeout time.Duration
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the speech model. Defaults to tts-1.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithVoices sets the per-language voice names (e.g., "alloy", "nova").
func WithVoices(v tts.Voices) Option {
	return func(c *config) { c.voices = v }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
	voices tts.Voices
}

// New constructs a Provider. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("tts/openai: apiKey must not be empty")
	}
	cfg := &config{model: string(oai.SpeechModelTTS1)}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.voices == nil {
		cfg.voices = tts.Voices{}
	}
	if cfg.voices[""] == "" {
		cfg.voices[""] = string(oai.AudioSpeechNewParamsVoiceAlloy)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{
			Timeout:   cfg.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model, voices: cfg.voices}, nil
}

// Synthesize implements tts.Provider. The clip is MP3.
func (p *Provider) Synthesize(ctx context.Context, text, language string) (audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, tts.ErrEmptyText
	}
	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(p.voices.For(language)),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("tts/openai: speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("tts/openai: read audio: %w", err)
	}
	if len(data) == 0 {
		return audio.Clip{}, errors.New("tts/openai: empty audio")
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || !strings.HasPrefix(contentType, "audio/") {
		contentType = "audio/mpeg"
	}
	return audio.Clip{Data: data, ContentType: contentType}, nil
}
