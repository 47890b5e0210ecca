// Package httpapi provides a chat provider for the food-search backend's
// interpretation endpoint:
//
//	POST {baseURL}/chat
//	{"session_id": "...", "text": "...", "language": "en", "include_audio": true}
//
// In voice-native mode "text" is empty and "audio" carries the base64
// utterance with its "audio_content_type". The response is a chat.Reply.
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
	"github.com/MrWong99/voicesphere/pkg/provider/chat"
)

const defaultTimeout = 30 * time.Second

var _ chat.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements chat.Provider over the /chat endpoint.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Provider targeting baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("chat/httpapi: baseURL must not be empty")
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

type chatRequest struct {
	SessionID        string `json:"session_id,omitempty"`
	Text             string `json:"text,omitempty"`
	Audio            string `json:"audio,omitempty"`
	AudioContentType string `json:"audio_content_type,omitempty"`
	Language         string `json:"language,omitempty"`
	IncludeAudio     bool   `json:"include_audio"`
}

// Interpret implements chat.Provider.
func (p *Provider) Interpret(ctx context.Context, req chat.Request) (chat.Interpretation, error) {
	body := chatRequest{
		SessionID:    req.SessionID,
		Text:         req.Text,
		Language:     req.Language,
		IncludeAudio: req.IncludeAudio,
	}
	if req.Audio != nil {
		body.Audio = base64.StdEncoding.EncodeToString(req.Audio.Data)
		body.AudioContentType = req.Audio.ContentType
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return chat.Interpretation{}, fmt.Errorf("chat/httpapi: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return chat.Interpretation{}, fmt.Errorf("chat/httpapi: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return chat.Interpretation{}, fmt.Errorf("chat/httpapi: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return chat.Interpretation{}, fmt.Errorf("chat/httpapi: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return chat.Interpretation{}, fmt.Errorf("chat/httpapi: server returned HTTP %d", resp.StatusCode)
	}

	var reply chat.Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		return chat.Interpretation{}, fmt.Errorf("chat/httpapi: parse JSON response: %w", err)
	}
	out := reply.Interpretation()
	if out.SessionID == "" {
		out.SessionID = req.SessionID
	}
	if reply.Audio != nil && reply.Audio.Data != "" {
		raw, err := base64.StdEncoding.DecodeString(reply.Audio.Data)
		if err != nil {
			return chat.Interpretation{}, fmt.Errorf("chat/httpapi: decode audio: %w", err)
		}
		out.Audio = audio.Clip{Data: raw, ContentType: reply.Audio.ContentType}
	}
	return out, nil
}
