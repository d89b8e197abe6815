package ptz

import "context"

// Device is the velocity-only capability of a PTZ head.
type Device interface {
	// Velocity drives axis at a signed normalized speed in [-1, 1]
	// until stopped. Positive moves right, up or in (tele).
	Velocity(ctx context.Context, axis Axis, speed float64) error

	// Stop halts the given axes, or every axis when none are given.
	Stop(ctx context.Context, axes ...Axis) error

	// Close releases the connection.
	Close() error
}

// LimitQuerier is implemented by devices that can report their axis limits.
type LimitQuerier interface {
	QueryLimits(ctx context.Context) (map[Axis]AxisModel, error)
}
