// Package speech defines the Provider interface for non-streaming speech
// synthesis backends.
//
// A speech provider turns a complete script into one payload of raw PCM
// audio. The payload stays in its transport encoding (base64 text) until the
// playback path decodes it, so every backend hands the same shape to the
// codec regardless of how its wire format arrived.
//
// Implementations must be safe for concurrent use.
package speech

import (
	"context"

	"github.com/MrWong99/solace/pkg/audio"
)

// Provider is the abstraction over any speech synthesis backend.
type Provider interface {
	// Synthesize renders text in the given voice. The returned payload holds
	// base64-encoded PCM16LE mono audio. Returns an error if the service
	// rejects the request, ctx is cancelled, or the response carries no audio.
	Synthesize(ctx context.Context, text string, voice Voice) (Payload, error)

	// Voices lists the voices this provider can synthesise with.
	Voices(ctx context.Context) ([]Voice, error)
}

// Voice identifies a synthesis voice.
type Voice struct {
	// ID is the provider-specific voice identifier, e.g. "Kore".
	ID string

	// Description is a short human-readable note on the voice's character.
	Description string

	// Provider names the backend this voice belongs to.
	Provider string
}

// Payload is one synthesised utterance.
type Payload struct {
	// Data is base64-encoded signed 16-bit little-endian mono PCM.
	Data string

	// SampleRate of the encoded audio in Hz.
	SampleRate int
}

// Decode converts the payload into a playable mono buffer.
func (p Payload) Decode() (*audio.Buffer, error) {
	rate := p.SampleRate
	if rate == 0 {
		rate = audio.SpeechSampleRate
	}
	return audio.DecodePayload(p.Data, rate, 1)
}
