// Package gemini provides a speech provider backed by the Gemini TTS models
// through the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/genai"

	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/provider/speech"
)

const defaultModel = "gemini-2.5-flash-preview-tts"

// ErrNoAudio is returned when the model answered without an audio part.
var ErrNoAudio = errors.New("gemini: response contains no audio")

var voices = []speech.Voice{
	{ID: "Kore", Description: "firm, even", Provider: "gemini"},
	{ID: "Fenrir", Description: "deep, calming", Provider: "gemini"},
	{ID: "Aoede", Description: "breezy", Provider: "gemini"},
	{ID: "Charon", Description: "informative", Provider: "gemini"},
	{ID: "Puck", Description: "upbeat", Provider: "gemini"},
	{ID: "Leda", Description: "youthful", Provider: "gemini"},
	{ID: "Zephyr", Description: "bright", Provider: "gemini"},
}

// Provider implements speech.Provider using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

var _ speech.Provider = (*Provider)(nil)

type config struct {
	model   string
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides the TTS model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the API base URL. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Gemini speech Provider.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}
	if cfg.timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.timeout}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Provider{client: client, model: cfg.model}, nil
}

// Synthesize implements speech.Provider. The first inline audio part of the
// first candidate is returned re-encoded as base64; its sample rate is taken
// from the part's MIME type and defaults to 24 kHz.
func (p *Provider) Synthesize(ctx context.Context, text string, voice speech.Voice) (speech.Payload, error) {
	gc := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
	}
	if voice.ID != "" {
		gc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice.ID},
			},
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(text), gc)
	if err != nil {
		return speech.Payload{}, fmt.Errorf("gemini: generate speech: %w", err)
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			return speech.Payload{
				Data:       base64.StdEncoding.EncodeToString(part.InlineData.Data),
				SampleRate: rateFromMIME(part.InlineData.MIMEType),
			}, nil
		}
	}
	return speech.Payload{}, ErrNoAudio
}

// Voices implements speech.Provider with the static prebuilt voice list.
func (p *Provider) Voices(context.Context) ([]speech.Voice, error) {
	return append([]speech.Voice(nil), voices...), nil
}

// rateFromMIME extracts the rate parameter of e.g. "audio/L16;codec=pcm;rate=24000".
func rateFromMIME(mimeType string) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return audio.SpeechSampleRate
	}
	rate, err := strconv.Atoi(params["rate"])
	if err != nil || rate <= 0 {
		return audio.SpeechSampleRate
	}
	return rate
}
