package ptz

import (
	"math"
	"time"
)

// Plan is a timed move on a single axis.
//
// The estimate assumes constant symmetric velocity with no acceleration ramp.
// Errors accumulate across moves and are only corrected by a hard origin.
type Plan struct {
	Axis      Axis
	Delta     float64
	Direction float64 // -1, 0 or +1
	Duration  time.Duration
	speed     float64
}

// PlanMove converts a displacement into a direction and duration. A displacement longer
// than the full range is cut to the full range: the axis is on its hard stop by then.
func PlanMove(a Axis, m AxisModel, delta float64) Plan {
	p := Plan{Axis: a, speed: m.Speed()}
	if delta == 0 || math.IsNaN(delta) {
		return p
	}
	if full := m.Range(); math.Abs(delta) > full {
		delta = math.Copysign(full, delta)
	}
	p.Delta = delta
	p.Direction = math.Copysign(1, delta)
	p.Duration = time.Duration(math.Abs(delta) / p.speed * float64(time.Second))
	return p
}

// Zero reports whether the plan needs no motion.
func (p Plan) Zero() bool {
	return p.Duration <= 0
}

// Traveled returns the displacement covered after elapsed, capped at the planned delta.
func (p Plan) Traveled(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= p.Duration {
		return p.Delta
	}
	return p.Direction * p.speed * elapsed.Seconds()
}

// ApplyMove returns pose with a moved by delta and clamped to the axis bounds.
func ApplyMove(pose Pose, a Axis, m AxisModel, delta float64) Pose {
	return pose.With(a, m.Clamp(pose.Get(a)+delta))
}
