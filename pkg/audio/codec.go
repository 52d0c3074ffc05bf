package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Sample rates of the remote service's raw PCM contract.
const (
	// SpeechSampleRate is the rate of synthesised speech, both from
	// non-streaming synthesis and from the live transport.
	SpeechSampleRate = 24000

	// CaptureSampleRate is the rate the live transport expects for
	// microphone input.
	CaptureSampleRate = 16000
)

// CodecErrorKind classifies a [CodecError].
type CodecErrorKind int

const (
	// InvalidEncoding means the payload was not valid base64.
	InvalidEncoding CodecErrorKind = iota + 1

	// EmptyPayload means the payload held no complete sample frame.
	EmptyPayload
)

// String returns the kind name.
func (k CodecErrorKind) String() string {
	switch k {
	case InvalidEncoding:
		return "invalid encoding"
	case EmptyPayload:
		return "empty payload"
	default:
		return fmt.Sprintf("CodecErrorKind(%d)", int(k))
	}
}

// Sentinel errors matched by [CodecError.Is] so callers can use errors.Is
// without a type assertion.
var (
	ErrInvalidEncoding = errors.New("audio: invalid encoding")
	ErrEmptyPayload    = errors.New("audio: empty payload")
)

// CodecError reports a failure to turn an encoded payload into samples.
// Codec errors are always local and never retried automatically.
type CodecError struct {
	Kind CodecErrorKind
	Err  error
}

func (e *CodecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: %s: %v", e.Kind, e.Err)
	}
	return "audio: " + e.Kind.String()
}

func (e *CodecError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrEmptyPayload) and friends work.
func (e *CodecError) Is(target error) bool {
	switch target {
	case ErrInvalidEncoding:
		return e.Kind == InvalidEncoding
	case ErrEmptyPayload:
		return e.Kind == EmptyPayload
	}
	return false
}

// DecodeBase64 decodes standard base64 text. The empty string decodes to an
// empty slice without error.
func DecodeBase64(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &CodecError{Kind: InvalidEncoding, Err: err}
	}
	return data, nil
}

// DecodePCM16 reinterprets pcm as interleaved little-endian int16 samples and
// returns a de-interleaved [Buffer] normalised by 1/32768.
//
// The usable frame count is len(pcm)/2/channels; a trailing partial frame is
// dropped silently. Zero complete frames is an [EmptyPayload] error.
func DecodePCM16(pcm []byte, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}
	frames := len(pcm) / 2 / channels
	if frames == 0 {
		return nil, &CodecError{Kind: EmptyPayload}
	}

	buf := NewBuffer(sampleRate, channels, frames)
	for i := range frames {
		for c := range channels {
			off := (i*channels + c) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[off:]))
			buf.Samples[c][i] = float32(s) / 32768.0
		}
	}
	return buf, nil
}

// DecodePayload is [DecodeBase64] followed by [DecodePCM16].
func DecodePayload(text string, sampleRate, channels int) (*Buffer, error) {
	pcm, err := DecodeBase64(text)
	if err != nil {
		return nil, err
	}
	return DecodePCM16(pcm, sampleRate, channels)
}

// EncodePCM16 packs float samples as little-endian int16. Each sample is
// multiplied by 32768 and truncated towards zero; values outside the int16
// range saturate.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// EncodeFrame is the outbound direction for microphone frames: PCM16 packing
// followed by standard base64.
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

func floatToInt16(s float32) int16 {
	v := math.Trunc(float64(s) * 32768)
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
