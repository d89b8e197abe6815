package ptz

import (
	"fmt"
	"strings"
)

// Axis identifies one independently driven degree of freedom of the head.
type Axis int

const (
	Pan Axis = iota
	Tilt
	Zoom

	numAxes = 3
)

// Axes lists every axis in a stable order.
var Axes = []Axis{Pan, Tilt, Zoom}

func (a Axis) String() string {
	switch a {
	case Pan:
		return "pan"
	case Tilt:
		return "tilt"
	case Zoom:
		return "zoom"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// Valid reports whether a is one of Pan, Tilt or Zoom.
func (a Axis) Valid() bool {
	return a >= Pan && a <= Zoom
}

// ParseAxis converts a name such as "pan" into an Axis.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pan":
		return Pan, nil
	case "tilt":
		return Tilt, nil
	case "zoom":
		return Zoom, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAxis, s)
}

func (a Axis) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAxis, int(a))
	}
	return []byte(a.String()), nil
}

func (a *Axis) UnmarshalText(b []byte) error {
	v, err := ParseAxis(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// AxisModel holds the physical constants of one axis.
//
// TraversalSeconds is the time the head takes to cross the full range when driven
// at Velocity, the normalized (0..1] device speed used for every timed move.
type AxisModel struct {
	Min              float64
	Max              float64
	TraversalSeconds float64
	Velocity         float64
}

// Speed returns the axis speed in units per second.
func (m AxisModel) Speed() float64 {
	return (m.Max - m.Min) / m.TraversalSeconds
}

// Range returns Max - Min.
func (m AxisModel) Range() float64 {
	return m.Max - m.Min
}

// Clamp restricts v to [Min, Max].
func (m AxisModel) Clamp(v float64) float64 {
	if v < m.Min {
		return m.Min
	}
	if v > m.Max {
		return m.Max
	}
	return v
}

// Contains reports whether v lies within [Min, Max].
func (m AxisModel) Contains(v float64) bool {
	return v >= m.Min && v <= m.Max
}

// Validate checks that the model describes a usable axis.
func (m AxisModel) Validate() error {
	if m.Max <= m.Min {
		return fmt.Errorf("max (%g) must be greater than min (%g)", m.Max, m.Min)
	}
	if m.TraversalSeconds <= 0 {
		return fmt.Errorf("traversal time must be positive, got %g", m.TraversalSeconds)
	}
	if m.Velocity <= 0 || m.Velocity > 1 {
		return fmt.Errorf("velocity must be in (0, 1], got %g", m.Velocity)
	}
	return nil
}

// Model groups the axis models of a head.
type Model struct {
	Pan  AxisModel
	Tilt AxisModel
	Zoom AxisModel
}

// DefaultModel returns the constants of the reference camera head:
// pan 0..350 in 20s, tilt -90..0 in 5s, zoom 0..100 in 6s.
func DefaultModel() Model {
	return Model{
		Pan:  AxisModel{Min: 0, Max: 350, TraversalSeconds: 20, Velocity: 0.2},
		Tilt: AxisModel{Min: -90, Max: 0, TraversalSeconds: 5, Velocity: 0.2},
		Zoom: AxisModel{Min: 0, Max: 100, TraversalSeconds: 6, Velocity: 0.2},
	}
}

// Axis returns the model for a.
func (m Model) Axis(a Axis) AxisModel {
	switch a {
	case Tilt:
		return m.Tilt
	case Zoom:
		return m.Zoom
	}
	return m.Pan
}

// Set returns a copy of m with the model for a replaced.
func (m Model) Set(a Axis, am AxisModel) Model {
	switch a {
	case Pan:
		m.Pan = am
	case Tilt:
		m.Tilt = am
	case Zoom:
		m.Zoom = am
	}
	return m
}

// Floor returns the pose with every axis at its minimum.
func (m Model) Floor() Pose {
	return Pose{Pan: m.Pan.Min, Tilt: m.Tilt.Min, Zoom: m.Zoom.Min}
}

// Validate checks every axis model.
func (m Model) Validate() error {
	for _, a := range Axes {
		if err := m.Axis(a).Validate(); err != nil {
			return fmt.Errorf("%s: %w", a, err)
		}
	}
	return nil
}
