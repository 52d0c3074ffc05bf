package gemini_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/solace/pkg/provider/live"
	"github.com/MrWong99/solace/pkg/provider/live/gemini"
)

// serve runs handler against every accepted websocket and returns the
// provider pointed at the server.
func serve(t *testing.T, handler func(conn *websocket.Conn, r *http.Request), opts ...gemini.Option) *gemini.Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	return gemini.New("test-api-key", append([]gemini.Option{gemini.WithBaseURL(base)}, opts...)...)
}

// connect opens a session and closes it when the test ends.
func connect(t *testing.T, p *gemini.Provider, cfg live.Config) live.Session {
	t.Helper()
	sess, err := p.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func recv(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("server read: %v", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Errorf("server decode: %v", err)
	}
}

func send(conn *websocket.Conn, v any) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	_ = conn.Write(ctx, websocket.MessageText, data)
}

type obj = map[string]any

// ready consumes the setup frame and acknowledges it.
func ready(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	var setup obj
	recv(t, conn, &setup)
	send(conn, obj{"setupComplete": obj{}})
}

// idle blocks until the client goes away.
func idle(conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(context.Background()); err != nil {
			return
		}
	}
}

// drain reads events until the channel closes.
func drain(t *testing.T, sess live.Session) []live.Event {
	t.Helper()
	var out []live.Event
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("events channel never closed")
			return out
		}
	}
}

func TestConnect_SetupMessage(t *testing.T) {
	t.Parallel()

	type setupMsg struct {
		Setup struct {
			Model            string `json:"model"`
			GenerationConfig struct {
				ResponseModalities []string `json:"responseModalities"`
				SpeechConfig       *struct {
					VoiceConfig struct {
						PrebuiltVoiceConfig struct {
							VoiceName string `json:"voiceName"`
						} `json:"prebuiltVoiceConfig"`
					} `json:"voiceConfig"`
				} `json:"speechConfig"`
			} `json:"generationConfig"`
			SystemInstruction *struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
			InputAudioTranscription  *struct{} `json:"inputAudioTranscription"`
			OutputAudioTranscription *struct{} `json:"outputAudioTranscription"`
		} `json:"setup"`
	}
	got := make(chan setupMsg, 1)
	keys := make(chan string, 1)

	p := serve(t, func(conn *websocket.Conn, r *http.Request) {
		keys <- r.URL.Query().Get("key")
		var msg setupMsg
		recv(t, conn, &msg)
		got <- msg
		send(conn, obj{"setupComplete": obj{}})
		idle(conn)
	}, gemini.WithModel("custom-model"))

	connect(t, p, live.Config{Instructions: "be calm", Voice: "Kore"})

	if k := <-keys; k != "test-api-key" {
		t.Errorf("api key = %q", k)
	}
	msg := <-got
	if msg.Setup.Model != "models/custom-model" {
		t.Errorf("model = %q", msg.Setup.Model)
	}
	if m := msg.Setup.GenerationConfig.ResponseModalities; len(m) != 1 || m[0] != "AUDIO" {
		t.Errorf("responseModalities = %v", m)
	}
	if sc := msg.Setup.GenerationConfig.SpeechConfig; sc == nil || sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Kore" {
		t.Errorf("voice not set: %+v", sc)
	}
	if si := msg.Setup.SystemInstruction; si == nil || len(si.Parts) != 1 || si.Parts[0].Text != "be calm" {
		t.Errorf("system instruction = %+v", si)
	}
	if msg.Setup.InputAudioTranscription == nil || msg.Setup.OutputAudioTranscription == nil {
		t.Error("transcription of both sides should be requested")
	}
}

func TestConnect_OmitsEmptyVoiceAndInstructions(t *testing.T) {
	t.Parallel()

	raw := make(chan obj, 1)
	p := serve(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg obj
		recv(t, conn, &msg)
		raw <- msg
		send(conn, obj{"setupComplete": obj{}})
		idle(conn)
	})

	connect(t, p, live.Config{})

	setup := (<-raw)["setup"].(obj)
	if _, ok := setup["systemInstruction"]; ok {
		t.Error("systemInstruction should be omitted")
	}
	gen := setup["generationConfig"].(obj)
	if _, ok := gen["speechConfig"]; ok {
		t.Error("speechConfig should be omitted")
	}
	if !strings.HasPrefix(setup["model"].(string), "models/gemini-2.5-flash-native-audio") {
		t.Errorf("default model = %v", setup["model"])
	}
}

func TestConnect_ServerErrorDuringHandshake(t *testing.T) {
	t.Parallel()

	p := serve(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup obj
		recv(t, conn, &setup)
		send(conn, obj{"error": obj{"code": 403, "message": "API key invalid"}})
		idle(conn)
	})

	_, err := p.Connect(context.Background(), live.Config{})
	if err == nil {
		t.Fatal("expected handshake error")
	}
	if !strings.Contains(err.Error(), "API key invalid") {
		t.Errorf("error = %v, want server message", err)
	}
}

func TestConnect_ClosedBeforeSetupComplete(t *testing.T) {
	t.Parallel()

	p := serve(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup obj
		recv(t, conn, &setup)
		conn.Close(websocket.StatusPolicyViolation, "quota exceeded")
	})

	if _, err := p.Connect(context.Background(), live.Config{}); err == nil {
		t.Fatal("expected error when server closes during handshake")
	}
}

func TestConnect_HandshakeTimeout(t *testing.T) {
	t.Parallel()

	p := serve(t, func(conn *websocket.Conn, _ *http.Request) {
		idle(conn)
	}, gemini.WithHandshakeTimeout(100*time.Millisecond))
	start := time.Now()
	if _, err := p.Connect(context.Background(), live.Config{}); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Connect took %v, handshake timeout not honoured", elapsed)
	}
}

func TestConnect_DialFailure(t *testing.T) {
	t.Parallel()
	p := gemini.New("key", gemini.WithBaseURL("ws://127.0.0.1:1"))
	if _, err := p.Connect(context.Background(), live.Config{}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestEvents_OrderAndKinds(t *testing.T) {
	t.Parallel()

	p := serve(t, func(conn *websocket.Conn, _ *http.Request) {
		ready(t, conn)
		send(conn, obj{"serverContent": obj{
			"inputTranscription": obj{"text": "I feel "},
		}})
		send(conn, obj{"serverContent": obj{
			"outputTranscription": obj{"text": "Breathe"},
			"modelTurn": obj{"parts": []any{
				obj{"inlineData": obj{"mimeType": "audio/pcm;rate=24000", "data": "AAAA"}},
				obj{"inlineData": obj{"mimeType": "audio/pcm;rate=24000", "data": "not base64!"}},
			}},
		}})
		send(conn, obj{"serverContent": obj{"interrupted": true}})
		send(conn, obj{"serverContent": obj{"turnComplete": true}})
		conn.Close(websocket.StatusNormalClosure, "bye")
	})

	sess := connect(t, p, live.Config{})

	got := drain(t, sess)
	want := []live.Event{
		{Kind: live.EventInputTranscript, Text: "I feel "},
		{Kind: live.EventOutputTranscript, Text: "Breathe"},
		{Kind: live.EventAudio, Audio: "AAAA"},
		{Kind: live.EventAudio, Audio: "not base64!"},
		{Kind: live.EventInterrupted},
		{Kind: live.EventTurnComplete},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events %+v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if err := sess.Err(); err != nil {
		t.Errorf("Err after normal close = %v, want nil", err)
	}
}

func TestEvents_SkipsMalformedFrames(t *testing.T) {
	t.Parallel()

	p := serve(t, func(conn *websocket.Conn, _ *http.Request) {
		ready(t, conn)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = conn.Write(ctx, websocket.MessageText, []byte("{not json"))
		send(conn, obj{"serverContent": obj{"turnComplete": true}})
		conn.Close(websocket.StatusNormalClosure, "bye")
	})

	sess := connect(t, p, live.Config{})

	got := drain(t, sess)
	if len(got) != 1 || got[0].Kind != live.EventTurnComplete {
		t.Fatalf("events = %+v, want a single turn_complete", got)
	}
}

func TestEvents_ServerErrorEndsSession(t *testing.T) {
	t.Parallel()

	p := serve(t, func(conn *websocket.Conn, _ *http.Request) {
		ready(t, conn)
		send(conn, obj{"error": obj{"code": 500, "message": "internal"}})
		idle(conn)
	})

	sess := connect(t, p, live.Config{})

	drain(t, sess)
	if err := sess.Err(); err == nil || !strings.Contains(err.Error(), "internal") {
		t.Fatalf("Err = %v, want server error", err)
	}
}

func TestEvents_AbnormalCloseSetsErr(t *testing.T) {
	t.Parallel()

	p := serve(t, func(conn *websocket.Conn, _ *http.Request) {
		ready(t, conn)
		conn.Close(websocket.StatusInternalError, "boom")
	})

	sess := connect(t, p, live.Config{})

	drain(t, sess)
	if sess.Err() == nil {
		t.Fatal("Err = nil, want transport error")
	}
}

func TestSendAudio_RealtimeInput(t *testing.T) {
	t.Parallel()

	type chunk struct {
		MIMEType string `json:"mimeType"`
		Data     string `json:"data"`
	}
	got := make(chan chunk, 1)

	p := serve(t, func(conn *websocket.Conn, _ *http.Request) {
		ready(t, conn)
		var msg struct {
			RealtimeInput struct {
				MediaChunks []chunk `json:"mediaChunks"`
			} `json:"realtimeInput"`
		}
		recv(t, conn, &msg)
		if len(msg.RealtimeInput.MediaChunks) == 1 {
			got <- msg.RealtimeInput.MediaChunks[0]
		}
		idle(conn)
	})

	sess := connect(t, p, live.Config{})

	if err := sess.SendAudio("AQID"); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	select {
	case c := <-got:
		if c.MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("mimeType = %q", c.MIMEType)
		}
		if c.Data != "AQID" {
			t.Errorf("data = %q, want passthrough", c.Data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for realtimeInput")
	}
}

func TestSendAudio_CustomInputRate(t *testing.T) {
	t.Parallel()

	mime := make(chan string, 1)
	p := serve(t, func(conn *websocket.Conn, _ *http.Request) {
		ready(t, conn)
		var msg struct {
			RealtimeInput struct {
				MediaChunks []struct {
					MIMEType string `json:"mimeType"`
				} `json:"mediaChunks"`
			} `json:"realtimeInput"`
		}
		recv(t, conn, &msg)
		if len(msg.RealtimeInput.MediaChunks) == 1 {
			mime <- msg.RealtimeInput.MediaChunks[0].MIMEType
		}
		idle(conn)
	})

	sess := connect(t, p, live.Config{InputSampleRate: 24000})

	_ = sess.SendAudio("AA==")
	select {
	case m := <-mime:
		if m != "audio/pcm;rate=24000" {
			t.Errorf("mimeType = %q", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	p := serve(t, func(conn *websocket.Conn, _ *http.Request) {
		ready(t, conn)
		idle(conn)
	})

	sess, err := p.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sess.SendAudio("AA=="); err != gemini.ErrSessionClosed {
		t.Errorf("SendAudio after Close = %v, want ErrSessionClosed", err)
	}

	drain(t, sess)
	if err := sess.Err(); err != nil {
		t.Errorf("Err after local Close = %v, want nil", err)
	}
}

// lockedBuffer is an io.Writer safe for the session's goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Swaps the default logger, so not parallel.
func TestKeepalive_LogsMissedPong(t *testing.T) {
	logs := &lockedBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	// The server stops reading after setup, so pings are never answered.
	release := make(chan struct{})
	p := serve(t, func(conn *websocket.Conn, _ *http.Request) {
		ready(t, conn)
		<-release
	}, gemini.WithKeepalive(10*time.Millisecond, 20*time.Millisecond))

	connect(t, p, live.Config{})
	t.Cleanup(func() { close(release) })

	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(logs.String(), "keepalive ping failed") {
		if time.Now().After(deadline) {
			t.Fatalf("no keepalive failure logged; logs:\n%s", logs.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
