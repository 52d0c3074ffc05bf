// Package text defines the Provider interface for script generation backends.
//
// A text provider expands a short prompt ("a five minute body scan", "a story
// about a lighthouse keeper") into the full script that is then handed to a
// speech provider. Generation is a single blocking request; streaming buys
// nothing here because synthesis needs the complete script.
package text

import "context"

// Request describes one generation.
type Request struct {
	// SystemPrompt sets the model's role and tone. Optional.
	SystemPrompt string

	// Prompt is the user instruction.
	Prompt string

	// Temperature controls randomness. Zero selects the provider default.
	Temperature float64

	// MaxTokens caps the response length. Zero means no explicit limit.
	MaxTokens int
}

// Provider is the abstraction over any text generation backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Generate returns the model's complete answer to req. An empty answer is
	// reported as an error.
	Generate(ctx context.Context, req Request) (string, error)
}
