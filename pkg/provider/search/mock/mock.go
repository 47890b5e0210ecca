// Package mock provides a test double for the search.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicesphere/pkg/provider/search"
)

// Provider is a mock implementation of search.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Search when Err is nil.
	Result search.Result

	// Err, if non-nil, is returned as the error from Search.
	Err error

	// Block, if non-nil, makes Search wait until it is closed or ctx is done.
	Block chan struct{}

	// SearchCalls records every query passed to Search.
	SearchCalls []search.Query
}

// Search records q and returns Result, Err.
func (p *Provider) Search(ctx context.Context, q search.Query) (search.Result, error) {
	p.mu.Lock()
	p.SearchCalls = append(p.SearchCalls, q)
	block, res, err := p.Block, p.Result, p.Err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return search.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return search.Result{}, err
	}
	return res, nil
}

// Calls returns a copy of the recorded queries.
func (p *Provider) Calls() []search.Query {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]search.Query(nil), p.SearchCalls...)
}

// CallCount returns the number of Search calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SearchCalls)
}

var _ search.Provider = (*Provider)(nil)
