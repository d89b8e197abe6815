package ptz

import (
	"context"
	"errors"
)

// AbsolutePanTilt moves pan and tilt to absolute targets and returns a handle.
//
// A zoomed head frames unreliably while panning, so when the zoom estimate is off its
// minimum the zoom is first driven to the minimum and that move is awaited before any
// pan or tilt command is issued. The axis with the smaller target then moves first,
// then the other, and finally zoom returns to its previous level.
//
// The sequence holds every axis until it ends, so other moves fail with ErrAxisBusy.
// If a pan or tilt step fails, zoom is still returned to its previous level before the
// error is reported. A cancelled sequence stops where it is.
func (c *Controller) AbsolutePanTilt(pan, tilt float64) (*Handle, error) {
	return c.panTilt(pan, tilt, nil)
}

// GoTo moves to every axis of p, finishing with zoom at p.Zoom.
func (c *Controller) GoTo(p Pose) (*Handle, error) {
	return c.panTilt(p.Pan, p.Tilt, &p.Zoom)
}

// panTilt validates the request up front and runs the sequence in the background.
// A nil zoom restores the zoom level found at the start.
func (c *Controller) panTilt(pan, tilt float64, zoom *float64) (*Handle, error) {
	var (
		start   Pose
		clamped []Clamp
		err     error
	)
	h, ctx := c.newSequence()
	e := c.exec(func(st *state) {
		if c.closed.Load() {
			err = ErrClosed
			return
		}
		for _, a := range Axes {
			if st.active[a] != nil || st.reserved[a] != nil {
				err = busy(a)
				return
			}
		}
		targets := []struct {
			axis Axis
			v    *float64
		}{{Pan, &pan}, {Tilt, &tilt}, {Zoom, zoom}}
		for _, t := range targets {
			if t.v == nil {
				continue
			}
			var cl *Clamp
			*t.v, cl, err = c.resolve(st, t.axis, *t.v)
			if err != nil {
				return
			}
			if cl != nil {
				clamped = append(clamped, *cl)
			}
		}
		if err = reserve(st, h); err != nil {
			return
		}
		start = st.pose
	})
	if e == nil {
		e = err
	}
	if e != nil {
		h.Cancel()
		return nil, e
	}

	restore := start.Zoom
	if zoom != nil {
		restore = *zoom
	}
	h.clamped = clamped
	c.launch(ctx, h, func(ctx context.Context) (Pose, error) {
		return c.runPanTilt(ctx, start.Zoom, pan, tilt, restore)
	})
	return h, nil
}

func (c *Controller) runPanTilt(ctx context.Context, zoom, pan, tilt, restore float64) (Pose, error) {
	neutral := c.model.Zoom.Min
	pose := c.Pose()
	var err error

	if zoom != neutral {
		c.log.Debug("zooming out before pan/tilt", "zoom", zoom)
		if pose, err = c.step(ctx, Zoom, neutral); err != nil {
			return pose, err
		}
	}

	order := []struct {
		axis   Axis
		target float64
	}{{Pan, pan}, {Tilt, tilt}}
	if tilt < pan {
		order[0], order[1] = order[1], order[0]
	}
	for _, o := range order {
		if pose, err = c.step(ctx, o.axis, o.target); err != nil {
			if ctx.Err() == nil && !errors.Is(err, ErrCancelled) && zoom != neutral {
				c.log.Warn("pan/tilt step failed, restoring zoom", "axis", o.axis, "error", err)
				if p, rerr := c.step(ctx, Zoom, zoom); rerr == nil {
					pose = p
				} else {
					c.log.Warn("zoom restore failed", "error", rerr)
				}
			}
			return pose, err
		}
	}

	if restore != neutral {
		if pose, err = c.step(ctx, Zoom, restore); err != nil {
			return pose, err
		}
	}
	return pose, nil
}

// step moves one axis to target and waits for the commit.
func (c *Controller) step(ctx context.Context, a Axis, target float64) (Pose, error) {
	h, err := c.Absolute(ctx, a, target)
	if err != nil {
		return c.Pose(), err
	}
	return await(ctx, h)
}
