package audio

import (
	"math"
	"time"
)

// Tone is a sine oscillator with a short attack and a linear release, used
// for the end-of-session chime. It implements [Source].
type Tone struct {
	// Frequency of the sine in Hz.
	Frequency float64

	// Peak is the gain reached at the end of the attack.
	Peak float64

	// Attack is the ramp time from silence to Peak.
	Attack time.Duration

	// Release is the time, measured from the start of the tone, at which the
	// level has fallen back to silence. It is also the tone's length.
	Release time.Duration

	// SampleRate of the rendered tone. Zero means [SpeechSampleRate].
	SampleRate int
}

// DefaultChime is an 880 Hz bell: up to 0.3 in 50 ms, silent by 1.5 s.
var DefaultChime = Tone{
	Frequency: 880,
	Peak:      0.3,
	Attack:    50 * time.Millisecond,
	Release:   1500 * time.Millisecond,
}

// Rate implements [Source].
func (t Tone) Rate() int {
	if t.SampleRate <= 0 {
		return SpeechSampleRate
	}
	return t.SampleRate
}

// Channels implements [Source].
func (t Tone) Channels() int { return 1 }

// Len implements [Source].
func (t Tone) Len() int { return DurationToFrames(t.Release, t.Rate()) }

// Duration returns the length of the tone.
func (t Tone) Duration() time.Duration { return t.Release }

// At implements [Source].
func (t Tone) At(frame, _ int) float32 {
	rate := t.Rate()
	at := FramesToDuration(frame, rate)
	phase := 2 * math.Pi * t.Frequency * float64(frame) / float64(rate)
	return float32(math.Sin(phase) * t.level(at))
}

// level is the attack/release envelope at offset at.
func (t Tone) level(at time.Duration) float64 {
	switch {
	case at < 0 || at >= t.Release:
		return 0
	case at < t.Attack:
		return t.Peak * float64(at) / float64(t.Attack)
	default:
		span := t.Release - t.Attack
		if span <= 0 {
			return 0
		}
		return t.Peak * float64(t.Release-at) / float64(span)
	}
}
