package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptzctl/internal/ptz"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ptzctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ptz.Pose{Pan: 225}, cfg.Home)
	assert.True(t, cfg.RequireCalibration)

	m, err := cfg.Model(nil)
	require.NoError(t, err)
	assert.Equal(t, ptz.DefaultModel(), m)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
log_level: debug
device:
  type: visca
  address: /dev/ttyUSB0
  protocol: serial
  baud: 38400
axes:
  pan:
    max: 340
    traversal_seconds: 29
  tilt:
    min: -30
    max: 90
home: {pan: 170, tilt: 0, zoom: 10}
range_policy: reject
calibrate_on_start: false
presets:
  stage: {pan: 100, tilt: 10, zoom: 50}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "serial", cfg.Device.Protocol)
	assert.Equal(t, 38400, cfg.Device.Baud)
	assert.Equal(t, 1, cfg.Device.Camera, "unset keys keep their default")
	assert.False(t, cfg.CalibrateOnStart)
	assert.Equal(t, ptz.Pose{Pan: 100, Tilt: 10, Zoom: 50}, cfg.Presets["stage"])

	m, err := cfg.Model(nil)
	require.NoError(t, err)
	assert.Equal(t, ptz.AxisModel{Min: 0, Max: 340, TraversalSeconds: 29, Velocity: 0.2}, m.Pan)
	assert.Equal(t, ptz.AxisModel{Min: -30, Max: 90, TraversalSeconds: 5, Velocity: 0.2}, m.Tilt)
	assert.Equal(t, ptz.DefaultModel().Zoom, m.Zoom)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, ptz.RejectOutOfRange, policy)

	level, err := ParseLevel(cfg.LogLevel)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestModel_DeviceLimits(t *testing.T) {
	max := 180.0
	cfg := Default()
	cfg.Axes.Pan = &AxisConfig{Max: &max}

	limits := map[ptz.Axis]ptz.AxisModel{
		ptz.Pan:  {Min: -170, Max: 170, TraversalSeconds: 10, Velocity: 0.5},
		ptz.Zoom: {Min: 0, Max: 1000, TraversalSeconds: 4, Velocity: 0.5},
	}
	m, err := cfg.Model(limits)
	require.NoError(t, err)
	assert.Equal(t, ptz.AxisModel{Min: -170, Max: 180, TraversalSeconds: 10, Velocity: 0.5}, m.Pan)
	assert.Equal(t, ptz.DefaultModel().Tilt, m.Tilt)
	assert.Equal(t, limits[ptz.Zoom], m.Zoom)
}

func TestModel_Invalid(t *testing.T) {
	min := 400.0
	cfg := Default()
	cfg.Axes.Pan = &AxisConfig{Min: &min}

	_, err := cfg.Model(nil)
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown device", "device: {type: carrier-pigeon, address: x}"},
		{"missing address", "device: {type: panasonic}"},
		{"bad policy", "range_policy: wrap\ndevice: {address: x}"},
		{"bad level", "log_level: loud\ndevice: {address: x}"},
		{"bad yaml", "device: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestValidate_SimNeedsNoAddress(t *testing.T) {
	cfg := Default()
	cfg.Device.Type = "sim"
	assert.NoError(t, cfg.Validate())
}

func TestOptions(t *testing.T) {
	cfg := Default()
	opts, err := cfg.Options()
	require.NoError(t, err)

	c, err := ptz.New(ptz.DefaultModel(), nil, opts...)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, ptz.Pose{}, c.Pose())
}
