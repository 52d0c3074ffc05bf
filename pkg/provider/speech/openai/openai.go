// Package openai provides a speech provider backed by the OpenAI audio API.
//
// Audio is requested with response_format=pcm, which the API defines as raw
// 24 kHz signed 16-bit little-endian mono: the same contract the playback
// codec expects, so the body only needs base64 wrapping.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/provider/speech"
)

const defaultModel = "gpt-4o-mini-tts"

// ErrNoAudio is returned when the API answered with an empty body.
var ErrNoAudio = errors.New("openai: response contains no audio")

var voices = []speech.Voice{
	{ID: "sage", Description: "calm, measured", Provider: "openai"},
	{ID: "alloy", Description: "neutral", Provider: "openai"},
	{ID: "coral", Description: "warm", Provider: "openai"},
	{ID: "onyx", Description: "deep", Provider: "openai"},
	{ID: "shimmer", Description: "soft", Provider: "openai"},
}

// Provider implements speech.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	instructions string
}

var _ speech.Provider = (*Provider)(nil)

type config struct {
	model        string
	baseURL      string
	instructions string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides the speech model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithInstructions sets delivery instructions ("speak slowly and softly").
// Ignored by models that do not support them.
func WithInstructions(s string) Option {
	return func(c *config) { c.instructions = s }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a new OpenAI speech Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        cfg.model,
		instructions: cfg.instructions,
	}, nil
}

// Synthesize implements speech.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice speech.Voice) (speech.Payload, error) {
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voiceID(voice)),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if p.instructions != "" {
		params.Instructions = oai.String(p.instructions)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return speech.Payload{}, fmt.Errorf("openai: create speech: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return speech.Payload{}, fmt.Errorf("openai: read speech: %w", err)
	}
	if len(pcm) == 0 {
		return speech.Payload{}, ErrNoAudio
	}
	return speech.Payload{
		Data:       base64.StdEncoding.EncodeToString(pcm),
		SampleRate: audio.SpeechSampleRate,
	}, nil
}

// Voices implements speech.Provider with the static built-in voice list.
func (p *Provider) Voices(context.Context) ([]speech.Voice, error) {
	return append([]speech.Voice(nil), voices...), nil
}

func voiceID(v speech.Voice) string {
	if v.ID == "" {
		return voices[0].ID
	}
	return v.ID
}
