package resilience

import (
	"context"

	"github.com/MrWong99/solace/pkg/provider/speech"
	"github.com/MrWong99/solace/pkg/provider/text"
)

// GuardedSpeech is a [speech.Provider] behind a [Breaker]. Listing voices
// bypasses the breaker.
type GuardedSpeech struct {
	p speech.Provider
	b *Breaker
}

var _ speech.Provider = (*GuardedSpeech)(nil)

// Speech wraps p with a new breaker configured by cfg.
func Speech(p speech.Provider, cfg Config) *GuardedSpeech {
	return &GuardedSpeech{p: p, b: NewBreaker(cfg)}
}

// Synthesize implements [speech.Provider].
func (g *GuardedSpeech) Synthesize(ctx context.Context, script string, voice speech.Voice) (speech.Payload, error) {
	var out speech.Payload
	err := g.b.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.p.Synthesize(ctx, script, voice)
		return err
	})
	return out, err
}

// Voices implements [speech.Provider].
func (g *GuardedSpeech) Voices(ctx context.Context) ([]speech.Voice, error) {
	return g.p.Voices(ctx)
}

// Breaker exposes the breaker, e.g. for a readiness check.
func (g *GuardedSpeech) Breaker() *Breaker { return g.b }

// GuardedText is a [text.Provider] behind a [Breaker].
type GuardedText struct {
	p text.Provider
	b *Breaker
}

var _ text.Provider = (*GuardedText)(nil)

// Text wraps p with a new breaker configured by cfg.
func Text(p text.Provider, cfg Config) *GuardedText {
	return &GuardedText{p: p, b: NewBreaker(cfg)}
}

// Generate implements [text.Provider].
func (g *GuardedText) Generate(ctx context.Context, req text.Request) (string, error) {
	var out string
	err := g.b.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.p.Generate(ctx, req)
		return err
	})
	return out, err
}

// Breaker exposes the breaker.
func (g *GuardedText) Breaker() *Breaker { return g.b }
