package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/solace/pkg/provider/speech"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := New(context.Background(), "test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestSynthesize_ReturnsAudio(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x00, 0x40, 0x00, 0xC0}
	var body map[string]any
	var path string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{
					map[string]any{"inlineData": map[string]any{
						"mimeType": "audio/L16;codec=pcm;rate=24000",
						"data":     base64.StdEncoding.EncodeToString(pcm),
					}},
				}},
			}},
		})
	})

	got, err := p.Synthesize(context.Background(), "Breathe in.", speech.Voice{ID: "Kore"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want 24000", got.SampleRate)
	}
	if got.Data != base64.StdEncoding.EncodeToString(pcm) {
		t.Errorf("Data = %q", got.Data)
	}
	if !strings.Contains(path, defaultModel) {
		t.Errorf("path %q does not name model %q", path, defaultModel)
	}

	buf, err := got.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Len() != 2 || buf.Samples[0][0] != 0.5 || buf.Samples[0][1] != -0.5 {
		t.Errorf("decoded samples = %v", buf.Samples[0])
	}

	raw, _ := json.Marshal(body)
	if !strings.Contains(string(raw), `"voiceName":"Kore"`) {
		t.Errorf("request does not select the voice: %s", raw)
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": "sorry"}}},
			}},
		})
	})

	if _, err := p.Synthesize(context.Background(), "x", speech.Voice{}); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("err = %v, want ErrNoAudio", err)
	}
}

func TestSynthesize_HTTPError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":429,"message":"quota"}}`, http.StatusTooManyRequests)
	})

	if _, err := p.Synthesize(context.Background(), "x", speech.Voice{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRateFromMIME(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mime string
		want int
	}{
		{"audio/L16;codec=pcm;rate=24000", 24000},
		{"audio/L16;rate=16000", 16000},
		{"audio/pcm", 24000},
		{"", 24000},
		{"audio/L16;rate=abc", 24000},
	}
	for _, tt := range tests {
		if got := rateFromMIME(tt.mime); got != tt.want {
			t.Errorf("rateFromMIME(%q) = %d, want %d", tt.mime, got, tt.want)
		}
	}
}

func TestVoices_IncludesDefaults(t *testing.T) {
	t.Parallel()
	p := &Provider{}
	vs, _ := p.Voices(context.Background())
	var kore, fenrir bool
	for _, v := range vs {
		kore = kore || v.ID == "Kore"
		fenrir = fenrir || v.ID == "Fenrir"
	}
	if !kore || !fenrir {
		t.Fatalf("voices %v missing Kore or Fenrir", vs)
	}
}
