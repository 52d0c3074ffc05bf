// Package live defines the Provider interface for bidirectional live voice
// backends.
//
// A live provider connects to a remote model that listens to a continuous
// stream of microphone audio and answers with a continuous stream of
// synthesised speech, plus incremental transcripts of both sides.
//
// The transport deliberately does not decode audio: inbound chunks are handed
// on as the base64 text the service sent, and outbound frames are accepted
// already encoded. Decoding and scheduling belong to the conversation
// controller, which decides how to treat a malformed chunk.
package live

import "context"

// EventKind discriminates the variants of [Event].
type EventKind int

const (
	// EventAudio carries one chunk of synthesised speech in Event.Audio.
	EventAudio EventKind = iota + 1

	// EventInputTranscript carries a fragment of what the user said.
	EventInputTranscript

	// EventOutputTranscript carries a fragment of what the assistant is saying.
	EventOutputTranscript

	// EventTurnComplete marks the end of the assistant's turn. No payload.
	EventTurnComplete

	// EventInterrupted reports that the user barged in and the remote side
	// abandoned the rest of its turn. No payload.
	EventInterrupted
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventInputTranscript:
		return "input_transcript"
	case EventOutputTranscript:
		return "output_transcript"
	case EventTurnComplete:
		return "turn_complete"
	case EventInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Event is one message from the remote side, in arrival order.
type Event struct {
	Kind EventKind

	// Audio is base64-encoded PCM16LE mono at the provider's output rate
	// (24 kHz for every backend in this repository). Set only for EventAudio.
	Audio string

	// Text is the transcript fragment for EventInputTranscript and
	// EventOutputTranscript.
	Text string
}

// Config holds parameters for a live session.
type Config struct {
	// Instructions is the system instruction for the model.
	Instructions string

	// Voice is the provider-specific prebuilt voice name. Empty selects the
	// provider default.
	Voice string

	// InputSampleRate is the rate of the audio passed to SendAudio.
	// Zero means 16000.
	InputSampleRate int
}

// Session is an open live conversation.
//
// Implementations must be safe for concurrent use: SendAudio is called from
// the capture path while Events is drained by the conversation controller.
type Session interface {
	// SendAudio transmits one base64-encoded PCM16LE mono frame. It does not
	// wait for any acknowledgement.
	SendAudio(encoded string) error

	// Events returns the inbound event stream. The channel is closed when the
	// session ends for any reason; call Err afterwards to tell a clean remote
	// close (nil) from a transport failure.
	Events() <-chan Event

	// Err returns the error that ended the session, or nil.
	Err() error

	// Close terminates the session and releases all resources. Idempotent.
	Close() error
}

// Provider opens live sessions.
type Provider interface {
	// Connect performs the full handshake; a returned Session is ready to
	// accept audio. Handshake failures are returned as errors.
	Connect(ctx context.Context, cfg Config) (Session, error)
}
