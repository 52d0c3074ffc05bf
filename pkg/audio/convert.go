package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Format is a stream's sample rate and channel count.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string { return formatString(f.SampleRate, f.Channels) }

// FormatConverter converts captured [Frame]s to a target format. It logs a
// warning on the first format mismatch and on the first misaligned frame.
// Use one per stream from a single goroutine.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns frame in the target format. A frame already in that format
// is returned as is.
// Conversion order: downmix first, then resample, then upmix.
func (c *FormatConverter) Convert(frame Frame) Frame {
	if frame.Channels <= 0 || len(frame.Samples)%frame.Channels != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: samples not aligned to channel count, dropping frame",
				"samples", len(frame.Samples),
				"sampleRate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return Frame{
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  frame.Timestamp,
		}
	}

	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", c.Target.String(),
		)
	})

	samples := frame.Samples
	channels := frame.Channels

	// Downmixing before resampling keeps the interpolation work mono.
	if channels > 1 && c.Target.Channels == 1 {
		samples = Downmix(samples, channels)
		channels = 1
	}

	if frame.SampleRate != c.Target.SampleRate {
		if channels == 1 {
			samples = Resample(samples, frame.SampleRate, c.Target.SampleRate)
		} else {
			samples = interleave(resampleChannels(deinterleave(samples, channels), frame.SampleRate, c.Target.SampleRate))
		}
	}

	if channels == 1 && c.Target.Channels > 1 {
		samples = Upmix(samples, c.Target.Channels)
		channels = c.Target.Channels
	}

	return Frame{
		Samples:    samples,
		SampleRate: c.Target.SampleRate,
		Channels:   channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream converts every frame from in on its own goroutine and closes
// the result once in is closed. The output buffer matches cap(in). Frames that convert to no samples are dropped.
func ConvertStream(in <-chan Frame, target Format) <-chan Frame {
	out := make(chan Frame, cap(in))
	go func() {
		defer close(out)
		conv := FormatConverter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Samples) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// Downmix averages interleaved multi-channel samples into mono.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Upmix duplicates each mono sample into channels interleaved copies.
func Upmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	out := make([]float32, len(samples)*channels)
	for i, s := range samples {
		for c := range channels {
			out[i*channels+c] = s
		}
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match the input is returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - math.Floor(pos))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// ToBuffer materialises src into a [Buffer] at rate, resampling each channel
// if necessary. A *Buffer already at rate is returned as is.
func ToBuffer(src Source, rate int) *Buffer {
	if b, ok := src.(*Buffer); ok && b.SampleRate == rate {
		return b
	}
	n := src.Len()
	chans := make([][]float32, src.Channels())
	for c := range chans {
		ch := make([]float32, n)
		for i := range n {
			ch[i] = src.At(i, c)
		}
		chans[c] = ch
	}
	return &Buffer{SampleRate: rate, Samples: resampleChannels(chans, src.Rate(), rate)}
}

func resampleChannels(chans [][]float32, srcRate, dstRate int) [][]float32 {
	out := make([][]float32, len(chans))
	for c, ch := range chans {
		out[c] = Resample(ch, srcRate, dstRate)
	}
	return out
}

func deinterleave(samples []float32, channels int) [][]float32 {
	frames := len(samples) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
		for i := range frames {
			out[c][i] = samples[i*channels+c]
		}
	}
	return out
}

func interleave(chans [][]float32) []float32 {
	if len(chans) == 0 {
		return nil
	}
	frames := len(chans[0])
	out := make([]float32, frames*len(chans))
	for c, ch := range chans {
		for i, s := range ch {
			out[i*len(chans)+c] = s
		}
	}
	return out
}

// formatString renders e.g. "24000Hz mono".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
