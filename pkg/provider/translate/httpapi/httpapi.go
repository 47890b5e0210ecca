// Package httpapi provides a translate provider for the backend endpoint
//
//	POST {baseURL}/api/translate
//	{"text": "...", "language": "ar"}  ->  {"translated": "..."}
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/voicesphere/pkg/provider/translate"
)

const defaultTimeout = 10 * time.Second

var _ translate.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements translate.Provider over /api/translate.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Provider targeting baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("translate/httpapi: baseURL must not be empty")
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

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, text, language string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": text, "language": language})
	if err != nil {
		return "", fmt.Errorf("translate/httpapi: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/translate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("translate/httpapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate/httpapi: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("translate/httpapi: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate/httpapi: server returned HTTP %d", resp.StatusCode)
	}
	var out struct {
		Translated string `json:"translated"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("translate/httpapi: parse JSON response: %w", err)
	}
	return out.Translated, nil
}
