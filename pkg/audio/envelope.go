package audio

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// envelopeEvent is one automation point. When ramp is set the value is
// approached linearly from the previous event; otherwise it is a step.
type envelopeEvent struct {
	at    time.Duration
	value float64
	ramp  bool
}

// Envelope is a gain automation curve on the device clock. It supports steps
// and linear ramps with the same semantics as Web Audio's AudioParam: a ramp
// starts at the time and value of the event before it.
//
// Envelope is safe for concurrent use; renderers call [Envelope.ValueAt]
// while controllers schedule changes.
type Envelope struct {
	mu      sync.Mutex
	initial float64
	events  []envelopeEvent
}

// NewEnvelope returns an envelope holding value until events are added.
func NewEnvelope(value float64) *Envelope {
	return &Envelope{initial: value}
}

// SetValueAt schedules a step to value at t.
func (e *Envelope) SetValueAt(value float64, t time.Duration) {
	e.insert(envelopeEvent{at: t, value: value})
}

// LinearRampTo schedules a linear ramp that reaches value at end.
func (e *Envelope) LinearRampTo(value float64, end time.Duration) {
	e.insert(envelopeEvent{at: end, value: value, ramp: true})
}

// CancelAfter removes every event scheduled at or after t.
func (e *Envelope) CancelAfter(t time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, _ := slices.BinarySearchFunc(e.events, t, func(ev envelopeEvent, t time.Duration) int {
		return cmp.Compare(ev.at, t)
	})
	e.events = e.events[:i]
}

// HoldAt pins the envelope at its current value from t onward: pending events
// after t are cancelled and a step to the value at t is inserted. This is the
// usual prelude to a fresh ramp.
func (e *Envelope) HoldAt(t time.Duration) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.valueAtLocked(t)
	i, _ := slices.BinarySearchFunc(e.events, t, func(ev envelopeEvent, t time.Duration) int {
		return cmp.Compare(ev.at, t)
	})
	e.events = append(e.events[:i], envelopeEvent{at: t, value: v})
	return v
}

// ValueAt returns the gain at device time t.
func (e *Envelope) ValueAt(t time.Duration) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.valueAtLocked(t)
}

func (e *Envelope) valueAtLocked(t time.Duration) float64 {
	prevAt, prevVal := time.Duration(0), e.initial
	for _, ev := range e.events {
		if ev.at <= t {
			prevAt, prevVal = ev.at, ev.value
			continue
		}
		if ev.ramp {
			span := ev.at - prevAt
			if span <= 0 {
				return ev.value
			}
			frac := float64(t-prevAt) / float64(span)
			return prevVal + (ev.value-prevVal)*frac
		}
		return prevVal
	}
	return prevVal
}

// insert keeps events sorted by time; equal times keep insertion order.
func (e *Envelope) insert(ev envelopeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := len(e.events)
	for i > 0 && e.events[i-1].at > ev.at {
		i--
	}
	e.events = slices.Insert(e.events, i, ev)
}
