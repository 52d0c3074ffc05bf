// Package mock provides a test double for the speech.Provider interface.
//
// Set the exported fields before the test to control return values, and
// inspect SynthesizeCalls afterwards to assert on the scripts and voices that
// were requested.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/solace/pkg/provider/speech"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice speech.Voice
}

// Provider is a mock implementation of speech.Provider.
type Provider struct {
	mu sync.Mutex

	// Payload is returned by Synthesize.
	Payload speech.Payload

	// SynthesizeErr, if non-nil, is returned by Synthesize.
	SynthesizeErr error

	// VoiceList is returned by Voices.
	VoiceList []speech.Voice

	// VoicesErr, if non-nil, is returned by Voices.
	VoicesErr error

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

var _ speech.Provider = (*Provider)(nil)

// Synthesize records the call and returns Payload, SynthesizeErr.
func (p *Provider) Synthesize(_ context.Context, text string, voice speech.Voice) (speech.Payload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		return speech.Payload{}, p.SynthesizeErr
	}
	return p.Payload, nil
}

// Voices returns VoiceList, VoicesErr.
func (p *Provider) Voices(context.Context) ([]speech.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.VoiceList, p.VoicesErr
}

// Calls returns a copy of the recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SynthesizeCall(nil), p.SynthesizeCalls...)
}
