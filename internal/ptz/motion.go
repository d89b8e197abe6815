package ptz

import (
	"context"
	"sync"
)

// Motion issues single velocity and stop commands to the bound device.
// It has no notion of position.
type Motion struct {
	mu     sync.RWMutex
	device Device
}

// NewMotion returns a Motion bound to d, which may be nil.
func NewMotion(d Device) *Motion {
	return &Motion{device: d}
}

// Bind swaps the device and returns the previous one.
func (m *Motion) Bind(d Device) Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.device
	m.device = d
	return prev
}

// Bound reports whether a device is attached.
func (m *Motion) Bound() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device != nil
}

func (m *Motion) current() Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device
}

// StartVelocity drives axis at speed.
func (m *Motion) StartVelocity(ctx context.Context, axis Axis, speed float64) error {
	d := m.current()
	if d == nil {
		return ErrDeviceUnavailable
	}
	if err := d.Velocity(ctx, axis, speed); err != nil {
		return &DeviceError{Op: "velocity", Axis: axis, Err: err}
	}
	return nil
}

// Stop halts axis. Stopping with no device bound is a no-op: there is nothing moving
// that the controller could have started.
func (m *Motion) Stop(ctx context.Context, axis Axis) error {
	d := m.current()
	if d == nil {
		return nil
	}
	if err := d.Stop(ctx, axis); err != nil {
		return &DeviceError{Op: "stop", Axis: axis, Err: err}
	}
	return nil
}

// StopAll halts every axis.
func (m *Motion) StopAll(ctx context.Context) error {
	d := m.current()
	if d == nil {
		return nil
	}
	if err := d.Stop(ctx); err != nil {
		return &DeviceError{Op: "stop", Axis: Pan, Err: err}
	}
	return nil
}
