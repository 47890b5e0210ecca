// Package mock provides a test double for the translate.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicesphere/pkg/provider/translate"
)

// TranslateCall records a single invocation of Translate.
type TranslateCall struct {
	Text     string
	Language string
}

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Translate. When empty, Func is consulted, and
	// failing that the text is returned prefixed with "[lang] ".
	Result string

	// Func, if set and Result is empty, computes the translation.
	Func func(text, language string) string

	// Err, if non-nil, is returned as the error from Translate.
	Err error

	// TranslateCalls records every call.
	TranslateCalls []TranslateCall
}

// Translate implements translate.Provider.
func (p *Provider) Translate(_ context.Context, text, language string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranslateCalls = append(p.TranslateCalls, TranslateCall{Text: text, Language: language})
	switch {
	case p.Err != nil:
		return "", p.Err
	case p.Result != "":
		return p.Result, nil
	case p.Func != nil:
		return p.Func(text, language), nil
	default:
		return "[" + language + "] " + text, nil
	}
}

// CallCount returns the number of Translate calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranslateCalls)
}

var _ translate.Provider = (*Provider)(nil)
