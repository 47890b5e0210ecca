// Package httpapi provides a TTS provider for the food-search backend's
// synthesis endpoint:
//
//	POST {baseURL}/api/tts
//	{"text": "...", "language": "en"}
//
// answered with {"audio": "<base64>", "contentType": "audio/mpeg"} or, on
// failure, a non-2xx status with {"error": "..."}.
package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/voicesphere/pkg/audio"
	"github.com/MrWong99/voicesphere/pkg/provider/tts"
)

const defaultTimeout = 20 * time.Second

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider over the JSON synthesis endpoint.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Provider targeting baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("tts/httpapi: baseURL must not be empty")
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type ttsRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

type ttsResponse struct {
	Audio       string `json:"audio"`
	ContentType string `json:"contentType"`
	Error       string `json:"error"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, language string) (audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, tts.ErrEmptyText
	}
	payload, err := json.Marshal(ttsRequest{Text: text, Language: language})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("tts/httpapi: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/tts", bytes.NewReader(payload))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("tts/httpapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("tts/httpapi: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("tts/httpapi: read response body: %w", err)
	}

	var result ttsResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(data, &result) == nil && result.Error != "" {
			return audio.Clip{}, fmt.Errorf("tts/httpapi: server returned HTTP %d: %s", resp.StatusCode, result.Error)
		}
		return audio.Clip{}, fmt.Errorf("tts/httpapi: server returned HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return audio.Clip{}, fmt.Errorf("tts/httpapi: parse JSON response: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(result.Audio)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("tts/httpapi: decode audio: %w", err)
	}
	if len(raw) == 0 {
		return audio.Clip{}, errors.New("tts/httpapi: response carried no audio")
	}
	contentType := result.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return audio.Clip{Data: raw, ContentType: contentType}, nil
}
