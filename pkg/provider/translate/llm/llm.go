// Package llm translates with a general-purpose LLM.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/voicesphere/pkg/provider/llm"
	"github.com/MrWong99/voicesphere/pkg/provider/translate"
)

const systemPrompt = "You translate short assistant phrases for a food ordering app. " +
	"Reply with the translation only, no quotes and no explanation. " +
	"Keep dish and restaurant names unchanged."

var _ translate.Provider = (*Provider)(nil)

// Provider implements translate.Provider on top of an llm.Provider.
type Provider struct {
	model llm.Provider
}

// New returns a Provider using model.
func New(model llm.Provider) (*Provider, error) {
	if model == nil {
		return nil, errors.New("translate/llm: model must not be nil")
	}
	return &Provider{model: model}, nil
}

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, text, language string) (string, error) {
	resp, err := p.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{llm.UserMessage(fmt.Sprintf("Target language: %s\n\n%s", language, text))},
		Temperature:  0,
		MaxTokens:    200,
	})
	if err != nil {
		return "", fmt.Errorf("translate/llm: %w", err)
	}
	if resp == nil {
		return "", errors.New("translate/llm: empty response")
	}
	return strings.Trim(strings.TrimSpace(resp.Content), `"`), nil
}
