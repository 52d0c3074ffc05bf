package conversation

import (
	"errors"
	"fmt"
)

// ErrorKind classifies live conversation failures.
type ErrorKind int

const (
	// PermissionDenied means microphone access was refused. The user must
	// grant it outside the application before a retry can succeed.
	PermissionDenied ErrorKind = iota + 1

	// HandshakeFailed means the remote session could not be established.
	HandshakeFailed

	// TransportInterrupted means an established session failed mid-stream.
	TransportInterrupted

	// DeviceUnavailable means the output or input device could not be opened.
	DeviceUnavailable
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case HandshakeFailed:
		return "handshake_failed"
	case TransportInterrupted:
		return "transport_interrupted"
	case DeviceUnavailable:
		return "device_unavailable"
	default:
		return "unknown"
	}
}

// Sentinels matching each [ErrorKind] with errors.Is.
var (
	ErrPermissionDenied     = errors.New("conversation: microphone permission denied")
	ErrHandshakeFailed      = errors.New("conversation: handshake failed")
	ErrTransportInterrupted = errors.New("conversation: transport interrupted")
	ErrDeviceUnavailable    = errors.New("conversation: device unavailable")
)

// ErrStopped is the cause of a [HandshakeFailed] error when
// [Controller.Stop] interrupts a Connect in progress.
var ErrStopped = errors.New("conversation: stopped while connecting")

// Error is a conversation failure with a classified kind and its cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("conversation: %s", e.Kind)
	}
	return fmt.Sprintf("conversation: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case PermissionDenied:
		return target == ErrPermissionDenied
	case HandshakeFailed:
		return target == ErrHandshakeFailed
	case TransportInterrupted:
		return target == ErrTransportInterrupted
	case DeviceUnavailable:
		return target == ErrDeviceUnavailable
	}
	return false
}

// Retryable reports whether reconnecting may succeed without the user first
// changing something outside the application. Permission denials are not.
func Retryable(err error) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Kind != PermissionDenied
}
