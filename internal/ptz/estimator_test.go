package ptz

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var panModel = AxisModel{Min: 0, Max: 350, TraversalSeconds: 29, Velocity: 0.2}

func TestPlanMove(t *testing.T) {
	p := PlanMove(Pan, panModel, 175)
	assert.Equal(t, 1.0, p.Direction)
	assert.InDelta(t, (14500 * time.Millisecond).Seconds(), p.Duration.Seconds(), 1e-6)

	p = PlanMove(Pan, panModel, -35)
	assert.Equal(t, -1.0, p.Direction)
	assert.InDelta(t, 2.9, p.Duration.Seconds(), 1e-6)

	p = PlanMove(Pan, panModel, 0)
	assert.True(t, p.Zero())
	assert.Equal(t, 0.0, p.Direction)
}

func TestPlanMove_CapsAtFullRange(t *testing.T) {
	full := 29 * time.Second
	tests := []struct {
		name  string
		delta float64
		want  float64
	}{
		{"just past range", 351, 350},
		{"huge", 1e12, 350},
		{"huge negative", -1e300, -350},
		{"infinite", math.Inf(1), 350},
		{"negative infinite", math.Inf(-1), -350},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PlanMove(Pan, panModel, tt.delta)
			assert.False(t, p.Zero())
			assert.Equal(t, tt.want, p.Delta)
			assert.Equal(t, math.Copysign(1, tt.want), p.Direction)
			assert.InDelta(t, full.Seconds(), p.Duration.Seconds(), 1e-6)
		})
	}
}

func TestPlan_Traveled(t *testing.T) {
	p := PlanMove(Pan, panModel, 175)

	assert.Equal(t, 0.0, p.Traveled(0))
	assert.InDelta(t, 36.2069, p.Traveled(3*time.Second), 1e-3)
	assert.Equal(t, 175.0, p.Traveled(20*time.Second))

	back := PlanMove(Pan, panModel, -175)
	assert.InDelta(t, -36.2069, back.Traveled(3*time.Second), 1e-3)
}

func TestApplyMove(t *testing.T) {
	tests := []struct {
		name  string
		start float64
		delta float64
		want  float64
	}{
		{"inside range", 0, 175, 175},
		{"overshoot high", 300, 100, 350},
		{"overshoot low", 20, -350, 0},
		{"no motion", 42, 0, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyMove(Pose{Pan: tt.start, Tilt: -10, Zoom: 5}, Pan, panModel, tt.delta)
			assert.Equal(t, tt.want, got.Pan)
			assert.Equal(t, -10.0, got.Tilt)
			assert.Equal(t, 5.0, got.Zoom)
		})
	}
}
