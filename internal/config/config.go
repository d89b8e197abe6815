// Package config loads the service configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ptzctl/internal/ptz"
)

// Config is the top-level configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`

	Device DeviceConfig `yaml:"device"`
	Axes   AxesConfig   `yaml:"axes"`

	Home               ptz.Pose            `yaml:"home"`
	InitialPose        ptz.Pose            `yaml:"initial_pose"`
	RangePolicy        string              `yaml:"range_policy"` // "clamp" or "reject"
	RequireCalibration bool                `yaml:"require_calibration"`
	CalibrateOnStart   bool                `yaml:"calibrate_on_start"`
	Presets            map[string]ptz.Pose `yaml:"presets"`
}

// DeviceConfig selects and addresses the PTZ head.
type DeviceConfig struct {
	Type     string `yaml:"type"`     // "visca", "panasonic" or "sim"
	Address  string `yaml:"address"`  // host:port, host, or serial device path
	Protocol string `yaml:"protocol"` // VISCA transport: "udp", "tcp" or "serial"
	Baud     int    `yaml:"baud"`
	Camera   int    `yaml:"camera"` // VISCA camera address 1-7
}

// AxesConfig overrides the physical constants of individual axes.
type AxesConfig struct {
	Pan  *AxisConfig `yaml:"pan"`
	Tilt *AxisConfig `yaml:"tilt"`
	Zoom *AxisConfig `yaml:"zoom"`
}

// AxisConfig overrides an axis model. Unset fields keep the base value.
type AxisConfig struct {
	Min              *float64 `yaml:"min"`
	Max              *float64 `yaml:"max"`
	TraversalSeconds float64  `yaml:"traversal_seconds"`
	Velocity         float64  `yaml:"velocity"`
}

func (c *AxesConfig) get(a ptz.Axis) *AxisConfig {
	switch a {
	case ptz.Pan:
		return c.Pan
	case ptz.Tilt:
		return c.Tilt
	case ptz.Zoom:
		return c.Zoom
	}
	return nil
}

func (ac *AxisConfig) apply(m ptz.AxisModel) ptz.AxisModel {
	if ac.Min != nil {
		m.Min = *ac.Min
	}
	if ac.Max != nil {
		m.Max = *ac.Max
	}
	if ac.TraversalSeconds != 0 {
		m.TraversalSeconds = ac.TraversalSeconds
	}
	if ac.Velocity != 0 {
		m.Velocity = ac.Velocity
	}
	return m
}

// Default returns the configuration of the reference head.
func Default() Config {
	return Config{
		Listen:   ":8080",
		LogLevel: "info",
		Device: DeviceConfig{
			Type:     "visca",
			Protocol: "udp",
			Baud:     9600,
			Camera:   1,
		},
		Home:               ptz.Pose{Pan: 225, Tilt: 0, Zoom: 0},
		RangePolicy:        "clamp",
		RequireCalibration: true,
		CalibrateOnStart:   true,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the fields that do not depend on the device.
func (c Config) Validate() error {
	var errs []error
	switch c.Device.Type {
	case "visca", "panasonic", "sim":
	default:
		errs = append(errs, fmt.Errorf("device.type: unknown %q", c.Device.Type))
	}
	if c.Device.Type != "sim" && c.Device.Address == "" {
		errs = append(errs, errors.New("device.address is required"))
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Policy parses RangePolicy.
func (c Config) Policy() (ptz.RangePolicy, error) {
	switch strings.ToLower(c.RangePolicy) {
	case "", "clamp":
		return ptz.ClampToRange, nil
	case "reject":
		return ptz.RejectOutOfRange, nil
	}
	return 0, fmt.Errorf("range_policy: unknown %q", c.RangePolicy)
}

// Model builds the axis model. Each axis starts from the limits reported by the
// device when there are any, else from the reference head, and then takes the
// overrides from the file.
func (c Config) Model(limits map[ptz.Axis]ptz.AxisModel) (ptz.Model, error) {
	m := ptz.DefaultModel()
	for _, a := range ptz.Axes {
		am := m.Axis(a)
		if l, ok := limits[a]; ok {
			am = l
		}
		if ac := c.Axes.get(a); ac != nil {
			am = ac.apply(am)
		}
		m = m.Set(a, am)
	}
	if err := m.Validate(); err != nil {
		return m, fmt.Errorf("axes: %w", err)
	}
	return m, nil
}

// Options returns the controller options described by c.
func (c Config) Options() ([]ptz.Option, error) {
	policy, err := c.Policy()
	if err != nil {
		return nil, err
	}
	return []ptz.Option{
		ptz.WithRangePolicy(policy),
		ptz.WithHome(c.Home),
		ptz.WithInitialPose(c.InitialPose),
		ptz.WithCalibrationRequired(c.RequireCalibration),
	}, nil
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
