package panasonic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ptzctl/internal/ptz"
)

const minInterval = 50 * time.Millisecond // ~20 commands/sec max

// pacer spaces commands at least minInterval apart. Unlike a coalescing throttle it
// never drops one: every start and stop must reach the head.
type pacer struct {
	lastSendTime time.Time
	interval     time.Duration
}

func (p *pacer) wait(ctx context.Context) error {
	remaining := p.interval - time.Since(p.lastSendTime)
	if remaining <= 0 {
		return nil
	}
	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Device manages HTTP CGI communication with a Panasonic PTZ camera
type Device struct {
	baseURL string
	client  *http.Client

	mu   sync.Mutex // serializes commands and guards the fields below
	pace pacer
	pan  float64
	tilt float64
	zoom float64
}

// Config for Panasonic device
type Config struct {
	Address string // Camera IP address or hostname (e.g., "192.168.1.100")
	Timeout time.Duration
}

// New creates a new Panasonic device
func New(cfg Config) (*Device, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("camera address is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}

	base := cfg.Address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Device{
		baseURL: strings.TrimRight(base, "/") + "/cgi-bin/aw_ptz",
		client: &http.Client{
			Timeout: timeout,
		},
		pace: pacer{interval: minInterval},
	}, nil
}

// Close releases idle HTTP connections
func (d *Device) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

// Velocity drives one axis. speed: -1.0 (left/down/wide) to 1.0 (right/up/tele)
func (d *Device) Velocity(ctx context.Context, axis ptz.Axis, speed float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch axis {
	case ptz.Pan:
		d.pan = speed
		return d.sendPanTiltCmd(ctx)
	case ptz.Tilt:
		d.tilt = speed
		return d.sendPanTiltCmd(ctx)
	case ptz.Zoom:
		d.zoom = speed
		return d.sendZoomCmd(ctx)
	}
	return fmt.Errorf("panasonic: unknown axis %v", axis)
}

// Stop stops the given axes, or all movement when none are named
func (d *Device) Stop(ctx context.Context, axes ...ptz.Axis) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(axes) == 0 {
		axes = ptz.Axes
	}
	var panTilt, zoom bool
	for _, a := range axes {
		switch a {
		case ptz.Pan:
			d.pan, panTilt = 0, true
		case ptz.Tilt:
			d.tilt, panTilt = 0, true
		case ptz.Zoom:
			d.zoom, zoom = 0, true
		}
	}

	if panTilt {
		if err := d.sendPanTiltCmd(ctx); err != nil {
			return err
		}
	}
	if zoom {
		return d.sendZoomCmd(ctx)
	}
	return nil
}

// sendPanTiltCmd sends the Panasonic pan/tilt command
// Panasonic format: #PTS<pan><tilt> where values are 01-99 (50 = stop)
func (d *Device) sendPanTiltCmd(ctx context.Context) error {
	return d.sendCommand(ctx, fmt.Sprintf("#PTS%02d%02d", speedToValue(d.pan), speedToValue(d.tilt)))
}

// sendZoomCmd sends the Panasonic zoom command
// Panasonic format: #Z<speed> where value is 01-99 (50 = stop)
func (d *Device) sendZoomCmd(ctx context.Context) error {
	return d.sendCommand(ctx, fmt.Sprintf("#Z%02d", speedToValue(d.zoom)))
}

// sendCommand sends a command to the camera via HTTP CGI. Caller holds d.mu.
func (d *Device) sendCommand(ctx context.Context, cmd string) error {
	if err := d.pace.wait(ctx); err != nil {
		return err
	}

	q := url.Values{"cmd": {cmd}, "res": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	d.pace.lastSendTime = time.Now()
	if err != nil {
		return fmt.Errorf("failed to send command %s: %w", cmd, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("command %s: camera returned %s", cmd, resp.Status)
	}
	return nil
}

// speedToValue converts a -1.0 to 1.0 value to Panasonic's 01-99 range
func speedToValue(v float64) int {
	if v < -1.0 {
		v = -1.0
	} else if v > 1.0 {
		v = 1.0
	}

	// Deadzone
	if v > -0.05 && v < 0.05 {
		return 50
	}

	// -1.0 -> 01, 1.0 -> 99
	return int(50 + v*49)
}
