// Package mock provides a test double for the chat.Provider interface.
//
// Results are served from a queue so a test can script a whole conversation:
//
//	p := &mock.Provider{Results: []chat.Interpretation{
//		{SpokenText: "Here you go", ShouldSearch: true, SearchTerms: []string{"pizza"}},
//		{ShouldStop: true, SpokenText: "Bye"},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicesphere/pkg/provider/chat"
)

// Provider is a mock implementation of chat.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned in order, one per call. Once exhausted, Result is
	// returned.
	Results []chat.Interpretation

	// Result is the fallback interpretation.
	Result chat.Interpretation

	// Err, if non-nil, is returned from Interpret.
	Err error

	// Block, if non-nil, makes Interpret wait until it is closed or ctx is
	// done.
	Block chan struct{}

	// InterpretCalls records the request of every call.
	InterpretCalls []chat.Request
}

// Interpret records req and returns the next scripted result.
func (p *Provider) Interpret(ctx context.Context, req chat.Request) (chat.Interpretation, error) {
	p.mu.Lock()
	p.InterpretCalls = append(p.InterpretCalls, req)
	res := p.Result
	if len(p.Results) > 0 {
		res = p.Results[0]
		p.Results = p.Results[1:]
	}
	block, err := p.Block, p.Err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return chat.Interpretation{}, ctx.Err()
		}
	}
	if err != nil {
		return chat.Interpretation{}, err
	}
	return res, nil
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []chat.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chat.Request(nil), p.InterpretCalls...)
}

// CallCount returns the number of Interpret calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.InterpretCalls)
}

var _ chat.Provider = (*Provider)(nil)
