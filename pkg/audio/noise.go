package audio

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// NoiseColor selects the spectrum of [NoiseBuffer].
type NoiseColor int

const (
	// White noise has equal power at every frequency.
	White NoiseColor = iota
	// Pink noise falls off at 3 dB per octave, like steady rain.
	Pink
	// Brown noise falls off at 6 dB per octave, a deep rumble.
	Brown
)

func (c NoiseColor) String() string {
	switch c {
	case White:
		return "white"
	case Pink:
		return "pink"
	case Brown:
		return "brown"
	default:
		return fmt.Sprintf("NoiseColor(%d)", int(c))
	}
}

// NoiseBuffer renders d of mono noise at rate. The same seed always yields
// the same samples. Pink and brown noise are scaled to roughly the loudness
// of white noise.
func NoiseBuffer(color NoiseColor, d time.Duration, rate int, seed uint64) *Buffer {
	buf := NewBuffer(rate, 1, DurationToFrames(d, rate))
	out := buf.Samples[0]
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	white := func() float64 { return rng.Float64()*2 - 1 }

	switch color {
	case Pink:
		// Paul Kellet's refined filter.
		var b0, b1, b2, b3, b4, b5, b6 float64
		for i := range out {
			w := white()
			b0 = 0.99886*b0 + w*0.0555179
			b1 = 0.99332*b1 + w*0.0750759
			b2 = 0.96900*b2 + w*0.1538520
			b3 = 0.86650*b3 + w*0.3104856
			b4 = 0.55000*b4 + w*0.5329522
			b5 = -0.7616*b5 - w*0.0168980
			out[i] = clampUnit((b0 + b1 + b2 + b3 + b4 + b5 + b6 + w*0.5362) * 0.11)
			b6 = w * 0.115926
		}
	case Brown:
		var last float64
		for i := range out {
			last = (last + 0.02*white()) / 1.02
			out[i] = clampUnit(last * 3.5)
		}
	default:
		for i := range out {
			out[i] = float32(white())
		}
	}
	return buf
}

func clampUnit(v float64) float32 {
	return float32(math.Max(-1, math.Min(1, v)))
}

// Binaural is a stereo pair of sines: Base Hz on the left and Base+Beat Hz on
// the right. Heard on headphones the difference is perceived as a beat. It
// implements [Source].
type Binaural struct {
	Base   float64
	Beat   float64
	Length time.Duration

	// SampleRate of the rendered pair. Zero means [SpeechSampleRate].
	SampleRate int
}

// Stock beats over a 200 Hz carrier.
var (
	BetaBeat  = Binaural{Base: 200, Beat: 14, Length: 2 * time.Second}
	ThetaBeat = Binaural{Base: 200, Beat: 6, Length: 2 * time.Second}
)

// Rate implements [Source].
func (b Binaural) Rate() int {
	if b.SampleRate <= 0 {
		return SpeechSampleRate
	}
	return b.SampleRate
}

// Channels implements [Source].
func (b Binaural) Channels() int { return 2 }

// Len implements [Source].
func (b Binaural) Len() int { return DurationToFrames(b.Length, b.Rate()) }

// At implements [Source]. With whole-hertz frequencies and a whole-second
// length the pair loops without a discontinuity.
func (b Binaural) At(frame, channel int) float32 {
	f := b.Base
	if channel == 1 {
		f += b.Beat
	}
	return float32(math.Sin(2 * math.Pi * f * float64(frame) / float64(b.Rate())))
}
