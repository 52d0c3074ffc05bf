package playback

import (
	"errors"
	"fmt"
)

// ErrorKind classifies playback failures.
type ErrorKind int

const (
	// DeviceUnavailable means the output device could not be opened or
	// resumed. Retrying after the user fixes their audio setup may succeed.
	DeviceUnavailable ErrorKind = iota + 1
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case DeviceUnavailable:
		return "device_unavailable"
	default:
		return "unknown"
	}
}

var (
	// ErrDeviceUnavailable matches any [*Error] of kind DeviceUnavailable
	// with errors.Is.
	ErrDeviceUnavailable = errors.New("playback: device unavailable")

	// ErrEmptyBuffer is returned by Start for a nil or zero-length buffer.
	ErrEmptyBuffer = errors.New("playback: empty buffer")

	// ErrNotPlaying is returned by Pause when the session is not playing, and
	// by Resume when it is not paused.
	ErrNotPlaying = errors.New("playback: session not in the required state")
)

// Error is a playback failure with a classified kind and its cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("playback: %s", e.Kind)
	}
	return fmt.Sprintf("playback: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return e.Kind == DeviceUnavailable && target == ErrDeviceUnavailable
}

// Retryable reports whether a user-initiated retry of the failed operation
// may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrDeviceUnavailable)
}
