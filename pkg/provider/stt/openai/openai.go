// Package openai provides an STT provider backed by the OpenAI Audio
// Transcriptions API (whisper-1, gpt-4o-transcribe and compatible servers).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/voicesphere/pkg/audio"
	"github.com/MrWong99/voicesphere/pkg/provider/stt"
)

const defaultModel = oai.AudioModelWhisper1

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*config)

type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the transcription model. Defaults to whisper-1.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// New constructs a Provider. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("stt/openai: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
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
	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, buf audio.Buffer, language string) (stt.Transcript, error) {
	contentType := buf.ContentType
	if contentType == "" {
		contentType = audio.ContentTypeWAV
	}
	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(buf.Data), "audio"+extension(contentType), contentType),
		Model:          oai.AudioModel(p.model),
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	}
	if language != "" {
		params.Language = oai.String(language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("stt/openai: transcription: %w", err)
	}

	fallback := language
	if fallback == "" {
		fallback = "en"
	}
	return stt.Finish(stt.Transcript{
		Text:     resp.Text,
		Language: detectedLanguage(resp.RawJSON()),
		Duration: buf.Duration,
	}, fallback)
}

// languageCodes maps the language names verbose_json reports to ISO codes.
var languageCodes = map[string]string{
	"english": "en",
	"arabic":  "ar",
	"french":  "fr",
	"spanish": "es",
	"german":  "de",
	"hindi":   "hi",
	"urdu":    "ur",
	"turkish": "tr",
	"persian": "fa",
	"russian": "ru",
	"chinese": "zh",
}

// detectedLanguage extracts the "language" field of a verbose_json payload
// as a short code. Unknown names yield "".
func detectedLanguage(raw string) string {
	var v struct {
		Language string `json:"language"`
	}
	if json.Unmarshal([]byte(raw), &v) != nil {
		return ""
	}
	l := strings.ToLower(strings.TrimSpace(v.Language))
	if len(l) == 2 {
		return l
	}
	return languageCodes[l]
}

func extension(contentType string) string {
	switch {
	case strings.Contains(contentType, "wav"):
		return ".wav"
	case strings.Contains(contentType, "webm"):
		return ".webm"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return ".mp3"
	default:
		return ".wav"
	}
}
