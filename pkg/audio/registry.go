package audio

import (
	"context"
	"fmt"
	"sync"
)

// OpenFunc creates a new output device.
type OpenFunc func(ctx context.Context) (Device, error)

// DeviceRegistry shares one output device between sessions. The device is
// opened lazily on the first [DeviceRegistry.Acquire] and closed when the
// last holder calls [DeviceRegistry.Release].
//
// All methods are safe for concurrent use.
type DeviceRegistry struct {
	open OpenFunc

	mu     sync.Mutex
	device Device
	refs   int
}

// NewDeviceRegistry returns a registry that opens devices with open.
func NewDeviceRegistry(open OpenFunc) *DeviceRegistry {
	return &DeviceRegistry{open: open}
}

// Acquire returns the shared device, opening it if no one holds it. Each
// successful Acquire must be paired with one Release.
func (r *DeviceRegistry) Acquire(ctx context.Context) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.device == nil {
		dev, err := r.open(ctx)
		if err != nil {
			return nil, fmt.Errorf("audio: open device: %w", err)
		}
		r.device = dev
	}
	r.refs++
	return r.device, nil
}

// Release drops one reference. The device is closed when the count reaches
// zero. Releasing with no outstanding references is a no-op.
func (r *DeviceRegistry) Release() error {
	r.mu.Lock()
	if r.refs == 0 {
		r.mu.Unlock()
		return nil
	}
	r.refs--
	if r.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	dev := r.device
	r.device = nil
	r.mu.Unlock()

	if err := dev.Close(); err != nil {
		return fmt.Errorf("audio: close device: %w", err)
	}
	return nil
}

// Refs returns the number of outstanding references.
func (r *DeviceRegistry) Refs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}
