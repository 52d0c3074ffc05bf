// Package mock provides a test double for the text.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/solace/pkg/provider/text"
)

// Provider is a mock implementation of text.Provider.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Generate.
	Response string

	// GenerateErr, if non-nil, is returned by Generate.
	GenerateErr error

	// GenerateCalls records every request passed to Generate, in order.
	GenerateCalls []text.Request
}

var _ text.Provider = (*Provider)(nil)

// Generate records the call and returns Response, GenerateErr.
func (p *Provider) Generate(_ context.Context, req text.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = append(p.GenerateCalls, req)
	if p.GenerateErr != nil {
		return "", p.GenerateErr
	}
	return p.Response, nil
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []text.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]text.Request(nil), p.GenerateCalls...)
}
