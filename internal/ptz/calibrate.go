package ptz

import "context"

// HardOrigin drives every axis a full range toward its minimum, which runs it into the
// physical low stop whatever the estimate was, then resets the estimate to the minimum
// on every axis and marks the controller calibrated. Zoom goes first; pan and tilt then
// move together. Every axis is held for the whole sweep.
func (c *Controller) HardOrigin() (*Handle, error) {
	var err error
	h, ctx := c.newSequence()
	e := c.exec(func(st *state) {
		if c.closed.Load() {
			err = ErrClosed
			return
		}
		err = reserve(st, h)
	})
	if e == nil {
		e = err
	}
	if e != nil {
		h.Cancel()
		return nil, e
	}
	c.launch(ctx, h, c.runHardOrigin)
	return h, nil
}

func (c *Controller) runHardOrigin(ctx context.Context) (Pose, error) {
	c.log.Info("moving to hard origin")

	if pose, err := c.sweepDown(ctx, Zoom); err != nil {
		return pose, err
	}

	hp, err := c.Relative(ctx, Pan, -c.model.Pan.Range())
	if err != nil {
		return c.Pose(), err
	}
	ht, err := c.Relative(ctx, Tilt, -c.model.Tilt.Range())
	if err != nil {
		hp.Cancel()
		pose, _ := hp.Result()
		return pose, err
	}
	if pose, err := await(ctx, hp); err != nil {
		ht.Cancel()
		ht.Result()
		return pose, err
	}
	if pose, err := await(ctx, ht); err != nil {
		return pose, err
	}

	var pose Pose
	if err := c.exec(func(st *state) {
		for _, a := range Axes {
			st.pose = st.pose.With(a, c.model.Axis(a).Min)
		}
		st.calibrated = true
		pose = st.pose
		c.notify(pose)
	}); err != nil {
		return Pose{}, err
	}
	c.log.Info("hard origin reached", "pose", pose)
	return pose, nil
}

func (c *Controller) sweepDown(ctx context.Context, a Axis) (Pose, error) {
	h, err := c.Relative(ctx, a, -c.model.Axis(a).Range())
	if err != nil {
		return c.Pose(), err
	}
	return await(ctx, h)
}

// Home moves to the configured home pose.
func (c *Controller) Home() (*Handle, error) {
	return c.GoTo(c.home)
}
