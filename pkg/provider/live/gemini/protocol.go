package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/MrWong99/solace/pkg/provider/live"
)

// Client frames of the BidiGenerateContent protocol.

type clientSetup struct {
	Setup struct {
		Model             string           `json:"model"`
		GenerationConfig  generation       `json:"generationConfig"`
		SystemInstruction *content         `json:"systemInstruction,omitempty"`
		InputTranscript   *json.RawMessage `json:"inputAudioTranscription,omitempty"`
		OutputTranscript  *json.RawMessage `json:"outputAudioTranscription,omitempty"`
	} `json:"setup"`
}

type generation struct {
	ResponseModalities []string `json:"responseModalities"`
	SpeechConfig       *voice   `json:"speechConfig,omitempty"`
}

// voice nests a prebuilt voice name the way the API expects it.
type voice struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type content struct {
	Parts []contentPart `json:"parts"`
}

type contentPart struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

// blob carries base64 audio in either direction.
type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type clientAudio struct {
	RealtimeInput struct {
		MediaChunks []blob `json:"mediaChunks"`
	} `json:"realtimeInput"`
}

// emptyObject enables a feature whose config has no fields.
var emptyObject = json.RawMessage(`{}`)

func setupFrame(model string, cfg live.Config) ([]byte, error) {
	var f clientSetup
	f.Setup.Model = "models/" + model
	f.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	f.Setup.InputTranscript = &emptyObject
	f.Setup.OutputTranscript = &emptyObject
	if cfg.Instructions != "" {
		f.Setup.SystemInstruction = &content{Parts: []contentPart{{Text: cfg.Instructions}}}
	}
	if cfg.Voice != "" {
		v := new(voice)
		v.VoiceConfig.PrebuiltVoiceConfig.VoiceName = cfg.Voice
		f.Setup.GenerationConfig.SpeechConfig = v
	}
	return json.Marshal(f)
}

func audioFrame(encoded string, rate int) ([]byte, error) {
	var f clientAudio
	f.RealtimeInput.MediaChunks = []blob{{MIMEType: fmt.Sprintf("audio/pcm;rate=%d", rate), Data: encoded}}
	return json.Marshal(f)
}

// Server frames.

type serverFrame struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *serverError     `json:"error,omitempty"`
}

type serverError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (e *serverError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.Code == 0 {
		return "gemini: server error: " + msg
	}
	return fmt.Sprintf("gemini: server error %d: %s", e.Code, msg)
}

type serverContent struct {
	ModelTurn           *content    `json:"modelTurn,omitempty"`
	TurnComplete        bool        `json:"turnComplete,omitempty"`
	Interrupted         bool        `json:"interrupted,omitempty"`
	InputTranscription  *transcript `json:"inputTranscription,omitempty"`
	OutputTranscription *transcript `json:"outputTranscription,omitempty"`
}

type transcript struct {
	Text string `json:"text"`
}

// events translates one serverContent into live events: transcripts first,
// then audio parts, then interruption and turn completion.
func (sc *serverContent) events() []live.Event {
	var out []live.Event
	if t := sc.InputTranscription; t != nil && t.Text != "" {
		out = append(out, live.Event{Kind: live.EventInputTranscript, Text: t.Text})
	}
	if t := sc.OutputTranscription; t != nil && t.Text != "" {
		out = append(out, live.Event{Kind: live.EventOutputTranscript, Text: t.Text})
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				out = append(out, live.Event{Kind: live.EventAudio, Audio: p.InlineData.Data})
			}
		}
	}
	if sc.Interrupted {
		out = append(out, live.Event{Kind: live.EventInterrupted})
	}
	if sc.TurnComplete {
		out = append(out, live.Event{Kind: live.EventTurnComplete})
	}
	return out
}
