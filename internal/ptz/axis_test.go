package ptz

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAxisModel_Speed(t *testing.T) {
	m := AxisModel{Min: 0, Max: 350, TraversalSeconds: 29, Velocity: 0.2}
	assert.InDelta(t, 12.0689, m.Speed(), 1e-3)
	assert.Equal(t, 350.0, m.Range())
}

func TestAxisModel_Clamp(t *testing.T) {
	m := AxisModel{Min: -90, Max: 0, TraversalSeconds: 5, Velocity: 0.2}
	tests := []struct {
		in, want float64
	}{
		{-120, -90},
		{-45, -45},
		{10, 0},
		{0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Clamp(tt.in), "clamp(%v)", tt.in)
	}
}

func TestAxisModel_Validate(t *testing.T) {
	tests := []struct {
		name  string
		model AxisModel
		ok    bool
	}{
		{"valid", AxisModel{Min: 0, Max: 10, TraversalSeconds: 1, Velocity: 1}, true},
		{"inverted range", AxisModel{Min: 10, Max: 0, TraversalSeconds: 1, Velocity: 1}, false},
		{"zero traversal", AxisModel{Min: 0, Max: 10, Velocity: 1}, false},
		{"velocity too high", AxisModel{Min: 0, Max: 10, TraversalSeconds: 1, Velocity: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.model.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
	require.NoError(t, DefaultModel().Validate())
}

func TestParseAxis(t *testing.T) {
	for _, a := range Axes {
		got, err := ParseAxis(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	got, err := ParseAxis(" Tilt ")
	require.NoError(t, err)
	assert.Equal(t, Tilt, got)

	_, err = ParseAxis("roll")
	assert.ErrorIs(t, err, ErrInvalidAxis)
}

func TestClamp_JSON(t *testing.T) {
	b, err := json.Marshal(Clamp{Axis: Tilt, Requested: 20, Target: 0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"axis":"tilt","requested":20,"target":0}`, string(b))

	var c Clamp
	require.NoError(t, json.Unmarshal(b, &c))
	assert.Equal(t, Tilt, c.Axis)
}

func TestPose_WithGet(t *testing.T) {
	p := Pose{}.With(Pan, 10).With(Tilt, -20).With(Zoom, 30)
	assert.Equal(t, Pose{Pan: 10, Tilt: -20, Zoom: 30}, p)
	for _, a := range Axes {
		assert.Equal(t, p.Get(a), targetValue(TargetOf(p), a))
	}
}

func targetValue(t Target, a Axis) float64 {
	switch a {
	case Pan:
		return *t.Pan
	case Tilt:
		return *t.Tilt
	}
	return *t.Zoom
}
