package ptz

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable is returned when no device is bound or a device call fails.
	ErrDeviceUnavailable = errors.New("ptz: device unavailable")

	// ErrAxisBusy is returned when a move is requested on an axis that is already moving.
	ErrAxisBusy = errors.New("ptz: axis busy")

	// ErrOutOfRange is returned when an absolute target lies outside the axis bounds.
	ErrOutOfRange = errors.New("ptz: target out of range")

	// ErrCalibrationRequired is returned for absolute moves before any hard origin has run.
	ErrCalibrationRequired = errors.New("ptz: calibration required")

	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("ptz: controller closed")

	// ErrInvalidAxis is returned for unknown axis names or values.
	ErrInvalidAxis = errors.New("ptz: invalid axis")
)

// DeviceError wraps a failed call to the device capability.
type DeviceError struct {
	Op   string
	Axis Axis
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("ptz: %s %s: %v", e.Op, e.Axis, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Is makes every DeviceError match ErrDeviceUnavailable.
func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}

// RangeError reports an absolute target outside [Min, Max].
type RangeError struct {
	Axis      Axis
	Requested float64
	Min, Max  float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("ptz: %s target %g outside [%g, %g]", e.Axis, e.Requested, e.Min, e.Max)
}

func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

func busy(a Axis) error {
	return fmt.Errorf("%w: %s", ErrAxisBusy, a)
}
