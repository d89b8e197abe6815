package ptz

import "fmt"

// Pose is the controller's belief about where the head is pointing.
type Pose struct {
	Pan  float64 `json:"pan" yaml:"pan"`
	Tilt float64 `json:"tilt" yaml:"tilt"`
	Zoom float64 `json:"zoom" yaml:"zoom"`
}

// Get returns the value for a.
func (p Pose) Get(a Axis) float64 {
	switch a {
	case Tilt:
		return p.Tilt
	case Zoom:
		return p.Zoom
	}
	return p.Pan
}

// With returns a copy of p with a set to v.
func (p Pose) With(a Axis, v float64) Pose {
	switch a {
	case Pan:
		p.Pan = v
	case Tilt:
		p.Tilt = v
	case Zoom:
		p.Zoom = v
	}
	return p
}

func (p Pose) String() string {
	return fmt.Sprintf("(pan=%.1f tilt=%.1f zoom=%.1f)", p.Pan, p.Tilt, p.Zoom)
}

// Target is a partial absolute pose. Nil fields are left where they are.
type Target struct {
	Pan  *float64 `json:"pan,omitempty"`
	Tilt *float64 `json:"tilt,omitempty"`
	Zoom *float64 `json:"zoom,omitempty"`
}

// TargetOf returns a Target covering every axis of p.
func TargetOf(p Pose) Target {
	return Target{Pan: &p.Pan, Tilt: &p.Tilt, Zoom: &p.Zoom}
}

// Empty reports whether no axis is set.
func (t Target) Empty() bool {
	return t.Pan == nil && t.Tilt == nil && t.Zoom == nil
}
