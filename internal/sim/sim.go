// Package sim provides an in-process PTZ head that integrates commanded velocity
// against its own clock, with hard stops at the axis limits.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"ptzctl/internal/ptz"
)

// ErrOffline is returned by every command while the head is offline.
var ErrOffline = errors.New("sim: head offline")

// Command is one command received by the head.
type Command struct {
	At    time.Time
	Op    string // "velocity" or "stop"
	Axis  ptz.Axis
	Speed float64
}

func (c Command) String() string {
	if c.Op == "stop" {
		return "stop " + c.Axis.String()
	}
	return fmt.Sprintf("velocity %s %+.2f", c.Axis, c.Speed)
}

// Head is a simulated PTZ head. Its true position is the integral of the commanded
// velocity, optionally scaled by a drift factor, clamped at the mechanical limits.
type Head struct {
	mu      sync.Mutex
	model   ptz.Model
	now     func() time.Time
	log     *slog.Logger
	pos     ptz.Pose
	vel     [3]float64
	since   time.Time
	drift   float64
	offline bool
	closed  bool
	history []Command
}

// Option configures a Head.
type Option func(*Head)

// WithStart places the head at p instead of the floor.
func WithStart(p ptz.Pose) Option {
	return func(h *Head) { h.pos = p }
}

// WithDrift scales the true speed of every axis, e.g. 1.05 for a head that runs 5% fast.
func WithDrift(f float64) Option {
	return func(h *Head) { h.drift = f }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Head) { h.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Head) { h.log = l }
}

// New returns a head with the given physical model, resting at the floor.
func New(model ptz.Model, opts ...Option) *Head {
	h := &Head{
		model: model,
		now:   time.Now,
		log:   slog.Default(),
		pos:   model.Floor(),
		drift: 1,
	}
	for _, o := range opts {
		o(h)
	}
	h.since = h.now()
	return h
}

// integrate advances the true position to now. Caller holds h.mu.
func (h *Head) integrate() {
	now := h.now()
	dt := now.Sub(h.since).Seconds()
	h.since = now
	if dt <= 0 {
		return
	}
	for _, a := range ptz.Axes {
		v := h.vel[a]
		if v == 0 {
			continue
		}
		am := h.model.Axis(a)
		rate := am.Speed() * v / am.Velocity * h.drift
		h.pos = h.pos.With(a, am.Clamp(h.pos.Get(a)+rate*dt))
	}
}

func (h *Head) check() error {
	if h.closed {
		return errors.New("sim: head closed")
	}
	if h.offline {
		return ErrOffline
	}
	return nil
}

// Velocity implements ptz.Device.
func (h *Head) Velocity(ctx context.Context, axis ptz.Axis, speed float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return err
	}
	if !axis.Valid() {
		return fmt.Errorf("sim: %w", ptz.ErrInvalidAxis)
	}
	h.integrate()
	h.vel[axis] = math.Max(-1, math.Min(1, speed))
	h.record(Command{At: h.since, Op: "velocity", Axis: axis, Speed: speed})
	return nil
}

// Stop implements ptz.Device.
func (h *Head) Stop(ctx context.Context, axes ...ptz.Axis) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return err
	}
	h.integrate()
	if len(axes) == 0 {
		axes = ptz.Axes
	}
	for _, a := range axes {
		if !a.Valid() {
			continue
		}
		h.vel[a] = 0
		h.record(Command{At: h.since, Op: "stop", Axis: a})
	}
	return nil
}

func (h *Head) record(c Command) {
	h.history = append(h.history, c)
	h.log.Debug("sim command", "component", "sim", "cmd", c.String())
}

// Close implements ptz.Device. The head halts and rejects further commands.
func (h *Head) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.integrate()
	h.vel = [3]float64{}
	h.closed = true
	return nil
}

// QueryLimits implements ptz.LimitQuerier.
func (h *Head) QueryLimits(ctx context.Context) (map[ptz.Axis]ptz.AxisModel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return nil, err
	}
	return map[ptz.Axis]ptz.AxisModel{
		ptz.Pan:  h.model.Pan,
		ptz.Tilt: h.model.Tilt,
		ptz.Zoom: h.model.Zoom,
	}, nil
}

// Position returns the true position of the head.
func (h *Head) Position() ptz.Pose {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.integrate()
	return h.pos
}

// Moving reports whether any axis is being driven.
func (h *Head) Moving() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.vel != [3]float64{}
}

// SetOffline makes every command fail with ErrOffline until called with false.
// Going offline does not halt an axis that is already moving.
func (h *Head) SetOffline(offline bool) {
	h.mu.Lock()
	h.offline = offline
	h.mu.Unlock()
}

// History returns every command received so far.
func (h *Head) History() []Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Command(nil), h.history...)
}
