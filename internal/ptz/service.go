package ptz

import (
	"context"

	"github.com/google/uuid"
)

// Result is what callers get back from a position service call.
type Result struct {
	Pose    Pose    `json:"pose"`
	Clamped []Clamp `json:"clamped,omitempty"`
	// Pending is set for non-blocking calls; Pose is then the estimate at start.
	Pending   bool      `json:"pending,omitempty"`
	Operation uuid.UUID `json:"operation"`
}

// EstimatedPose returns the current pose estimate.
func (c *Controller) EstimatedPose() Pose {
	return c.Pose()
}

// MoveRelative moves axis a by delta. With blocking set it returns once the pose has
// been committed; otherwise it returns as soon as the move has started.
func (c *Controller) MoveRelative(ctx context.Context, a Axis, delta float64, blocking bool) (Result, error) {
	h, err := c.Relative(ctx, a, delta)
	if err != nil {
		return Result{Pose: c.Pose()}, err
	}
	return c.settle(ctx, h, blocking)
}

// MoveAbsolute moves the axes set in t. Pan and tilt go through AbsolutePanTilt, so the
// zoom-neutral rule applies; a zoom target replaces the restore step.
func (c *Controller) MoveAbsolute(ctx context.Context, t Target, blocking bool) (Result, error) {
	var (
		h   *Handle
		err error
	)
	switch {
	case t.Empty():
		return Result{Pose: c.Pose()}, nil
	case t.Pan == nil && t.Tilt == nil:
		h, err = c.Absolute(ctx, Zoom, *t.Zoom)
	default:
		cur := c.Pose()
		pan, tilt := cur.Pan, cur.Tilt
		if t.Pan != nil {
			pan = *t.Pan
		}
		if t.Tilt != nil {
			tilt = *t.Tilt
		}
		h, err = c.panTilt(pan, tilt, t.Zoom)
	}
	if err != nil {
		return Result{Pose: c.Pose()}, err
	}
	return c.settle(ctx, h, blocking)
}

// CalibrateHardOrigin runs the hard origin sequence.
func (c *Controller) CalibrateHardOrigin(ctx context.Context, blocking bool) (Result, error) {
	h, err := c.HardOrigin()
	if err != nil {
		return Result{Pose: c.Pose()}, err
	}
	return c.settle(ctx, h, blocking)
}

// GoHome moves to the home pose and waits for it.
func (c *Controller) GoHome(ctx context.Context) (Result, error) {
	h, err := c.Home()
	if err != nil {
		return Result{Pose: c.Pose()}, err
	}
	return c.settle(ctx, h, true)
}

// settle either waits for h or reports it as pending. A blocking caller whose ctx ends
// cancels the operation.
func (c *Controller) settle(ctx context.Context, h *Handle, blocking bool) (Result, error) {
	r := Result{Clamped: h.Clamped(), Operation: h.ID}
	if !blocking {
		select {
		case <-h.Done():
			var err error
			r.Pose, err = h.Result()
			return r, err
		default:
			r.Pose = c.Pose()
			r.Pending = true
		}
		return r, nil
	}
	var err error
	r.Pose, err = await(ctx, h)
	return r, err
}
