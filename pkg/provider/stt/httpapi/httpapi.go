// Package httpapi provides an STT provider for the food-search backend's own
// transcription endpoint.
//
// The endpoint accepts the audio as base64 JSON:
//
//	POST {baseURL}/transcribe
//	{"audio": "<base64>", "mimeType": "audio/wav", "language": "en"}
//
// and answers with {"text": "...", "language": "en"} or, on failure, a
// non-2xx status with {"error": "..."}.
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
	"github.com/MrWong99/voicesphere/pkg/provider/stt"
)

const defaultTimeout = 2 * time.Minute

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default client. Defaults to
// two minutes, which matches long uploads over slow links.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements stt.Provider over the JSON transcription endpoint.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Provider targeting baseURL (e.g. "http://localhost:3000").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("stt/httpapi: baseURL must not be empty")
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

type transcribeRequest struct {
	Audio    string `json:"audio"`
	MimeType string `json:"mimeType"`
	Language string `json:"language,omitempty"`
}

type transcribeResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Error    string `json:"error"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, buf audio.Buffer, language string) (stt.Transcript, error) {
	payload, err := json.Marshal(transcribeRequest{
		Audio:    base64.StdEncoding.EncodeToString(buf.Data),
		MimeType: buf.ContentType,
		Language: language,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("stt/httpapi: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transcribe", bytes.NewReader(payload))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("stt/httpapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("stt/httpapi: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("stt/httpapi: read response body: %w", err)
	}

	var result transcribeResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(data, &result) == nil && result.Error != "" {
			return stt.Transcript{}, fmt.Errorf("stt/httpapi: server returned HTTP %d: %s", resp.StatusCode, result.Error)
		}
		return stt.Transcript{}, fmt.Errorf("stt/httpapi: server returned HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Transcript{}, fmt.Errorf("stt/httpapi: parse JSON response: %w", err)
	}

	fallback := language
	if fallback == "" {
		fallback = "en"
	}
	return stt.Finish(stt.Transcript{
		Text:     result.Text,
		Language: result.Language,
		Duration: buf.Duration,
	}, fallback)
}
