package audio_test

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/solace/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestDecodeBase64_Empty(t *testing.T) {
	t.Parallel()
	got, err := audio.DecodeBase64("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}

func TestDecodeBase64_Invalid(t *testing.T) {
	t.Parallel()
	_, err := audio.DecodeBase64("not base64!!")
	if !errors.Is(err, audio.ErrInvalidEncoding) {
		t.Fatalf("err = %v, want ErrInvalidEncoding", err)
	}
	var ce *audio.CodecError
	if !errors.As(err, &ce) || ce.Kind != audio.InvalidEncoding {
		t.Fatalf("err = %#v, want *CodecError{Kind: InvalidEncoding}", err)
	}
	if errors.Is(err, audio.ErrEmptyPayload) {
		t.Fatal("invalid encoding must not match ErrEmptyPayload")
	}
}

func TestDecodePCM16_Empty(t *testing.T) {
	t.Parallel()
	_, err := audio.DecodePCM16(nil, audio.SpeechSampleRate, 1)
	if !errors.Is(err, audio.ErrEmptyPayload) {
		t.Fatalf("err = %v, want ErrEmptyPayload", err)
	}
}

func TestDecodePCM16_Normalises(t *testing.T) {
	t.Parallel()
	buf, err := audio.DecodePCM16(samplesToBytes([]int16{0, 16384, -32768, 32767}), 24000, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{0, 0.5, -1, 32767.0 / 32768.0}
	if buf.Len() != len(want) {
		t.Fatalf("Len = %d, want %d", buf.Len(), len(want))
	}
	for i, w := range want {
		if buf.Samples[0][i] != w {
			t.Errorf("sample %d: got %v, want %v", i, buf.Samples[0][i], w)
		}
	}
	if buf.SampleRate != 24000 || buf.Channels() != 1 {
		t.Errorf("format = %dHz %dch, want 24000Hz 1ch", buf.SampleRate, buf.Channels())
	}
}

func TestDecodePCM16_DeinterleavesStereo(t *testing.T) {
	t.Parallel()
	buf, err := audio.DecodePCM16(samplesToBytes([]int16{16384, -16384, 8192, -8192}), 48000, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 2 {
		t.Fatalf("Len = %d, want 2", buf.Len())
	}
	if buf.Samples[0][0] != 0.5 || buf.Samples[1][0] != -0.5 || buf.Samples[0][1] != 0.25 || buf.Samples[1][1] != -0.25 {
		t.Fatalf("unexpected channels: %v", buf.Samples)
	}
}

func TestDecodePCM16_DropsTrailingPartialFrame(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		bytes    int
		channels int
		want     int
	}{
		{"mono odd", 7, 1, 3},
		{"mono single byte", 1, 1, 0},
		{"stereo half frame", 6, 2, 1},
		{"stereo exact", 8, 2, 2},
		{"mono large odd", 4097, 1, 2048},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf, err := audio.DecodePCM16(make([]byte, tt.bytes), 16000, tt.channels)
			if tt.want == 0 {
				if !errors.Is(err, audio.ErrEmptyPayload) {
					t.Fatalf("err = %v, want ErrEmptyPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if buf.Len() != tt.want {
				t.Fatalf("Len = %d, want %d", buf.Len(), tt.want)
			}
		})
	}
}

func TestDecodePCM16_InvalidChannels(t *testing.T) {
	t.Parallel()
	if _, err := audio.DecodePCM16([]byte{0, 0}, 16000, 0); err == nil {
		t.Fatal("expected error for zero channels")
	}
}

func TestDecodePayload_Duration(t *testing.T) {
	t.Parallel()
	// 2400 samples at 24 kHz is 100 ms.
	payload := base64.StdEncoding.EncodeToString(make([]byte, 4800))
	buf, err := audio.DecodePayload(payload, audio.SpeechSampleRate, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := buf.Duration().Milliseconds(); got != 100 {
		t.Fatalf("Duration = %dms, want 100ms", got)
	}
}

func TestEncodeFrame_PacksLittleEndian(t *testing.T) {
	t.Parallel()
	enc := audio.EncodeFrame([]float32{0, 0.5, -0.5, -1})
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		t.Fatalf("not valid base64: %v", err)
	}
	got := bytesToSamples(raw)
	want := []int16{0, 16384, -16384, -32768}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEncodePCM16_Saturates(t *testing.T) {
	t.Parallel()
	got := bytesToSamples(audio.EncodePCM16([]float32{1, 1.5, -1.5, float32(math.NaN())}))
	want := []int16{32767, 32767, -32768, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEncodePCM16_Truncates(t *testing.T) {
	t.Parallel()
	// 0.00005 * 32768 = 1.6384 truncates to 1; the negative mirror to -1.
	got := bytesToSamples(audio.EncodePCM16([]float32{0.00005, -0.00005}))
	if got[0] != 1 || got[1] != -1 {
		t.Fatalf("got %v, want [1 -1]", got)
	}
}

func TestRoundTrip_WithinOneStep(t *testing.T) {
	t.Parallel()
	in := make([]int16, 0, 512)
	for i := range 512 {
		in = append(in, int16((i*977)%65536-32768))
	}
	buf, err := audio.DecodePCM16(samplesToBytes(in), 16000, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := bytesToSamples(audio.EncodePCM16(buf.Samples[0]))
	for i := range in {
		if d := int(in[i]) - int(out[i]); d > 1 || d < -1 {
			t.Fatalf("sample %d: %d -> %d, off by more than one step", i, in[i], out[i])
		}
	}
}

func TestCodecErrorKind_String(t *testing.T) {
	t.Parallel()
	if audio.InvalidEncoding.String() != "invalid encoding" {
		t.Errorf("got %q", audio.InvalidEncoding.String())
	}
	if audio.EmptyPayload.String() != "empty payload" {
		t.Errorf("got %q", audio.EmptyPayload.String())
	}
}
