// Package llm provides a chat provider that interprets utterances with a
// general-purpose LLM bound to the chat.Reply JSON contract.
//
// The system prompt describes the food-ordering assistant and the reply
// schema. Recent history from the request is replayed as prior turns so the
// model can resolve follow-ups like "cheaper ones".
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/voicesphere/pkg/provider/chat"
	"github.com/MrWong99/voicesphere/pkg/provider/llm"
)

// DefaultSystemPrompt describes the assistant and the reply contract.
const DefaultSystemPrompt = `You are a friendly voice assistant that helps people find food to order.
Reply with one JSON object and nothing else:
{"response": string, "should_search": bool, "search_terms": [string], "should_stop": bool}
- "response" is a short spoken reply (one or two sentences, no markdown).
- Set "should_search" when the user asks for food, a dish, a cuisine or a restaurant; put the keywords in "search_terms" in English.
- When searching, "response" may be empty; the app announces the search itself.
- Set "should_stop" when the user says goodbye or wants to end the conversation.`

// ErrAudioInput is returned for voice-native requests, which a text LLM
// cannot serve.
var ErrAudioInput = errors.New("chat/llm: audio input is not supported")

var _ chat.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(p string) Option {
	return func(pr *Provider) {
		if p != "" {
			pr.systemPrompt = p
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(pr *Provider) { pr.temperature = t }
}

// WithMaxHistory bounds how many history messages are replayed.
func WithMaxHistory(n int) Option {
	return func(pr *Provider) { pr.maxHistory = n }
}

// Provider implements chat.Provider on top of an llm.Provider.
type Provider struct {
	model        llm.Provider
	systemPrompt string
	temperature  float64
	maxHistory   int
}

// New wraps model.
func New(model llm.Provider, opts ...Option) (*Provider, error) {
	if model == nil {
		return nil, errors.New("chat/llm: model must not be nil")
	}
	p := &Provider{
		model:        model,
		systemPrompt: DefaultSystemPrompt,
		temperature:  0.3,
		maxHistory:   10,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Interpret implements chat.Provider.
func (p *Provider) Interpret(ctx context.Context, req chat.Request) (chat.Interpretation, error) {
	if strings.TrimSpace(req.Text) == "" {
		if req.Audio != nil {
			return chat.Interpretation{}, ErrAudioInput
		}
		return chat.Interpretation{}, errors.New("chat/llm: empty utterance")
	}

	resp, err := p.model.Complete(ctx, p.buildRequest(req))
	if err != nil {
		return chat.Interpretation{}, fmt.Errorf("chat/llm: complete: %w", err)
	}
	if resp == nil {
		return chat.Interpretation{}, errors.New("chat/llm: empty completion")
	}

	out, ok := parseReply(resp.Content)
	if !ok && resp.Truncated {
		return chat.Interpretation{}, fmt.Errorf("chat/llm: %w", llm.ErrTruncated)
	}
	out.SessionID = req.SessionID
	if out.Language == "" {
		out.Language = req.Language
	}
	return out, nil
}

func (p *Provider) buildRequest(req chat.Request) llm.CompletionRequest {
	system := p.systemPrompt
	if req.Language != "" && req.Language != "en" {
		system += fmt.Sprintf("\nWrite \"response\" in the language with code %q.", req.Language)
	}

	history := req.History
	if p.maxHistory > 0 && len(history) > p.maxHistory {
		history = history[len(history)-p.maxHistory:]
	}
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Text})
	}
	msgs = append(msgs, llm.UserMessage(req.Text))

	return llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     msgs,
		Temperature:  p.temperature,
		MaxTokens:    300,
		JSON:         true,
	}
}

// parseReply decodes the model's content. Content that is not a JSON reply
// is spoken as-is and ok is false.
func parseReply(content string) (out chat.Interpretation, ok bool) {
	s := strings.TrimSpace(content)
	if start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); start >= 0 && end > start {
		var r chat.Reply
		if err := json.Unmarshal([]byte(s[start:end+1]), &r); err == nil {
			return r.Interpretation(), true
		}
	}
	return chat.Interpretation{SpokenText: s}, false
}
