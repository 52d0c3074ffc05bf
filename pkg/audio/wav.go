package audio

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes buf as a 16-bit PCM WAV file.
func WriteWAV(w io.WriteSeeker, buf *Buffer) error {
	ch := buf.Channels()
	if ch == 0 {
		return errors.New("audio: write wav: buffer has no channels")
	}
	enc := wav.NewEncoder(w, buf.SampleRate, 16, ch, 1)

	data := make([]int, buf.Len()*ch)
	for i := range buf.Len() {
		for c := range ch {
			data[i*ch+c] = int(floatToInt16(buf.Samples[c][i]))
		}
	}
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: ch, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	return nil
}

// ReadWAV decodes a 16-bit PCM WAV file into a [Buffer].
func ReadWAV(r io.ReadSeeker) (*Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("audio: read wav: not a valid wav file")
	}
	ib, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: read wav: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("audio: read wav: unsupported bit depth %d", dec.BitDepth)
	}
	ch := int(dec.NumChans)
	if ch == 0 {
		return nil, errors.New("audio: read wav: zero channels")
	}
	frames := len(ib.Data) / ch
	buf := NewBuffer(int(dec.SampleRate), ch, frames)
	for i := range frames {
		for c := range ch {
			buf.Samples[c][i] = float32(ib.Data[i*ch+c]) / 32768.0
		}
	}
	return buf, nil
}
