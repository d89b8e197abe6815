package ptz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCancelled is the error of a move that was stopped before its planned end.
var ErrCancelled = errors.New("ptz: move cancelled")

// stopTimeout bounds the stop command issued when a move ends.
const stopTimeout = 2 * time.Second

// AxisState is the motion state of a single axis.
type AxisState int

const (
	Idle AxisState = iota
	Moving
)

func (s AxisState) String() string {
	if s == Moving {
		return "moving"
	}
	return "idle"
}

// MarshalText renders the state by name in JSON.
func (s AxisState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AxisState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "moving":
		*s = Moving
	default:
		return fmt.Errorf("ptz: unknown axis state %q", b)
	}
	return nil
}

// RangePolicy decides what happens to absolute targets outside the axis bounds.
type RangePolicy int

const (
	// ClampToRange moves to the nearest bound and reports the clamp in the result.
	ClampToRange RangePolicy = iota
	// RejectOutOfRange fails the request before any device call.
	RejectOutOfRange
)

// Status is a snapshot of the controller.
type Status struct {
	Pose        Pose                 `json:"pose"`
	Calibrated  bool                 `json:"calibrated"`
	DeviceBound bool                 `json:"device_bound"`
	Axes        map[string]AxisState `json:"axes"`
}

// state is owned by the run loop. Nothing outside an op passed to exec may touch it.
type state struct {
	pose       Pose
	calibrated bool
	active     [numAxes]*move
	// reserved holds the sequence that owns an axis between its steps.
	reserved   [numAxes]*Handle
}

// move is one timed velocity command in flight.
type move struct {
	plan    Plan
	started time.Time
	timer   Timer
	stop    chan struct{}
	handle  *Handle
}

// Controller is an open-loop PTZ motion controller. It keeps an estimated pose by
// integrating commanded velocity over time and sequences multi-axis moves.
//
// Pose and axis states are mutated only on the run loop goroutine. Each move runs as its
// own task and sends a single commit back to the loop when it completes or is cancelled.
type Controller struct {
	model      Model
	home       Pose
	motion     *Motion
	clock      Clock
	log        *slog.Logger
	policy     RangePolicy
	requireCal bool
	onCommit   func(Pose)

	ops      chan func(*state)
	quit     chan struct{}
	loopDone chan struct{}
	st       state

	life     context.Context
	stopLife context.CancelFunc

	seqMu sync.Mutex
	seqs  map[*Handle]struct{}

	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithClock replaces the wall clock.
func WithClock(clk Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithRangePolicy sets how out-of-range absolute targets are handled.
func WithRangePolicy(p RangePolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithInitialPose sets the pose assumed before any calibration.
func WithInitialPose(p Pose) Option {
	return func(c *Controller) { c.st.pose = p }
}

// WithHome sets the pose used by Home.
func WithHome(p Pose) Option {
	return func(c *Controller) { c.home = p }
}

// WithCalibrationRequired controls whether absolute moves need a prior hard origin.
func WithCalibrationRequired(required bool) Option {
	return func(c *Controller) { c.requireCal = required }
}

// WithCommitHook registers fn to be called with the new pose after every commit.
// fn runs on the controller loop: it must not block or call back into the controller.
func WithCommitHook(fn func(Pose)) Option {
	return func(c *Controller) { c.onCommit = fn }
}

// New creates a controller for a head described by model. The device may be nil and
// bound later with Bind.
func New(model Model, device Device, opts ...Option) (*Controller, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		model:      model,
		home:       model.Floor(),
		motion:     NewMotion(device),
		clock:      realClock{},
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		requireCal: true,
		ops:        make(chan func(*state)),
		quit:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		seqs:       make(map[*Handle]struct{}),
	}
	c.st.pose = model.Floor()
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "ptz")
	c.st.pose = Pose{
		Pan:  model.Pan.Clamp(c.st.pose.Pan),
		Tilt: model.Tilt.Clamp(c.st.pose.Tilt),
		Zoom: model.Zoom.Clamp(c.st.pose.Zoom),
	}
	c.life, c.stopLife = context.WithCancel(context.Background())

	go c.run()
	return c, nil
}

// Model returns the axis models the controller was built with.
func (c *Controller) Model() Model {
	return c.model
}

// Bind attaches a device, replacing and returning the previous one.
func (c *Controller) Bind(d Device) Device {
	prev := c.motion.Bind(d)
	c.log.Info("device bound", "bound", d != nil)
	return prev
}

func (c *Controller) run() {
	defer close(c.loopDone)
	for {
		select {
		case op := <-c.ops:
			op(&c.st)
		case <-c.quit:
			return
		}
	}
}

// exec runs fn on the loop and waits for it to return.
func (c *Controller) exec(fn func(*state)) error {
	done := make(chan struct{})
	op := func(st *state) {
		defer close(done)
		fn(st)
	}
	select {
	case c.ops <- op:
	case <-c.quit:
		return ErrClosed
	}
	<-done
	return nil
}

// Pose returns the current estimate. After Close it is the last committed estimate.
func (c *Controller) Pose() Pose {
	var p Pose
	if err := c.exec(func(st *state) { p = st.pose }); err != nil {
		return c.final().pose
	}
	return p
}

// final returns the state left behind by a closed loop.
func (c *Controller) final() *state {
	<-c.loopDone
	return &c.st
}

// Status returns a snapshot of pose, axis states and calibration.
func (c *Controller) Status() Status {
	s := Status{
		DeviceBound: c.motion.Bound(),
		Axes:        make(map[string]AxisState, numAxes),
	}
	snapshot := func(st *state) {
		s.Pose = st.pose
		s.Calibrated = st.calibrated
		for _, a := range Axes {
			if st.active[a] != nil {
				s.Axes[a.String()] = Moving
			} else {
				s.Axes[a.String()] = Idle
			}
		}
	}
	if err := c.exec(snapshot); err != nil {
		snapshot(c.final())
	}
	return s
}

// Relative starts a move of delta units on axis a and returns immediately.
// Starting a move on an axis that is already moving fails with ErrAxisBusy.
func (c *Controller) Relative(ctx context.Context, a Axis, delta float64) (*Handle, error) {
	if !a.Valid() {
		return nil, ErrInvalidAxis
	}
	var (
		h   *Handle
		err error
	)
	if e := c.exec(func(st *state) { h, err = c.start(ctx, st, a, delta) }); e != nil {
		return nil, e
	}
	return h, err
}

// Absolute starts a move of axis a to target and returns immediately.
func (c *Controller) Absolute(ctx context.Context, a Axis, target float64) (*Handle, error) {
	if !a.Valid() {
		return nil, ErrInvalidAxis
	}
	var (
		h   *Handle
		err error
	)
	e := c.exec(func(st *state) {
		var cl *Clamp
		target, cl, err = c.resolve(st, a, target)
		if err != nil {
			return
		}
		h, err = c.start(ctx, st, a, target-st.pose.Get(a))
		if h != nil && cl != nil {
			h.clamped = []Clamp{*cl}
		}
	})
	if e != nil {
		return nil, e
	}
	return h, err
}

// resolve validates an absolute target against calibration and the range policy.
func (c *Controller) resolve(st *state, a Axis, target float64) (float64, *Clamp, error) {
	if c.requireCal && !st.calibrated {
		return 0, nil, ErrCalibrationRequired
	}
	m := c.model.Axis(a)
	if math.IsNaN(target) {
		return 0, nil, &RangeError{Axis: a, Requested: target, Min: m.Min, Max: m.Max}
	}
	if m.Contains(target) {
		return target, nil, nil
	}
	if c.policy == RejectOutOfRange {
		return 0, nil, &RangeError{Axis: a, Requested: target, Min: m.Min, Max: m.Max}
	}
	cl := &Clamp{Axis: a, Requested: target, Target: m.Clamp(target)}
	c.log.Warn("target clamped", "axis", a, "requested", target, "target", cl.Target)
	return cl.Target, cl, nil
}

// start issues the velocity command for a move and hands it to a tracking task.
// Runs on the loop.
func (c *Controller) start(ctx context.Context, st *state, a Axis, delta float64) (*Handle, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if st.active[a] != nil {
		return nil, busy(a)
	}
	if r := st.reserved[a]; r != nil && r != sequenceOwner(ctx) {
		return nil, busy(a)
	}

	m := c.model.Axis(a)
	plan := PlanMove(a, m, delta)
	if plan.Zero() {
		return doneHandle(st.pose), nil
	}
	// The device call stays on the loop so an axis only turns Moving once the head has
	// accepted the command. Other ops wait for it, pacing included.
	if err := c.motion.StartVelocity(ctx, a, plan.Direction*m.Velocity); err != nil {
		c.log.Warn("move not started", "axis", a, "error", err)
		return nil, err
	}

	mv := &move{
		plan:    plan,
		started: c.clock.Now(),
		timer:   c.clock.NewTimer(plan.Duration),
		stop:    make(chan struct{}),
	}
	mv.handle = newHandle(func() { close(mv.stop) })
	st.active[a] = mv
	c.log.Debug("move started", "axis", a, "delta", plan.Delta, "duration", plan.Duration)

	c.wg.Add(1)
	go c.track(mv)
	return mv.handle, nil
}

// track waits for the planned duration or a cancellation, stops the axis and commits.
func (c *Controller) track(mv *move) {
	defer c.wg.Done()

	cancelled := false
	select {
	case <-mv.timer.C():
	case <-mv.stop:
		cancelled = true
		mv.timer.Stop()
	}
	ended := c.clock.Now()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	stopErr := c.motion.Stop(ctx, mv.plan.Axis)
	cancel()

	if err := c.exec(func(st *state) { c.commit(st, mv, ended, cancelled, stopErr) }); err != nil {
		mv.handle.finish(Pose{}, err)
	}
}

// commit folds a finished move into the pose. A commit for a move that is no longer the
// active one on its axis is ignored.
func (c *Controller) commit(st *state, mv *move, ended time.Time, cancelled bool, stopErr error) {
	a := mv.plan.Axis
	if st.active[a] != mv {
		return
	}

	traveled := mv.plan.Delta
	if cancelled {
		traveled = mv.plan.Traveled(ended.Sub(mv.started))
	}
	st.pose = ApplyMove(st.pose, a, c.model.Axis(a), traveled)
	st.active[a] = nil

	err := stopErr
	if err == nil && cancelled {
		err = ErrCancelled
	}
	if stopErr != nil {
		c.log.Warn("stop failed", "axis", a, "error", stopErr)
	}
	c.log.Debug("move committed", "axis", a, "traveled", traveled, "cancelled", cancelled, "pose", st.pose)

	mv.handle.finish(st.pose, err)
	c.notify(st.pose)
}

func (c *Controller) notify(p Pose) {
	if c.onCommit != nil {
		c.onCommit(p)
	}
}

// Stop cancels the moves on the given axes, or on every axis when none are given, and
// waits for their commits. Idle axes are left untouched.
func (c *Controller) Stop(ctx context.Context, axes ...Axis) (Pose, error) {
	if len(axes) == 0 {
		axes = Axes
	}
	var handles []*Handle
	err := c.exec(func(st *state) {
		for _, a := range axes {
			if a.Valid() && st.active[a] != nil {
				st.active[a].handle.Cancel()
				handles = append(handles, st.active[a].handle)
			}
		}
	})
	if err != nil {
		return Pose{}, err
	}
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return c.Pose(), ctx.Err()
		}
	}
	return c.Pose(), nil
}

// CancelAll aborts running sequences, cancels every moving axis with an elapsed-time
// commit and sends a device-wide stop. It returns once every sequence has ended.
func (c *Controller) CancelAll(ctx context.Context) (Pose, error) {
	c.seqMu.Lock()
	seqs := make([]*Handle, 0, len(c.seqs))
	for h := range c.seqs {
		h.Cancel()
		seqs = append(seqs, h)
	}
	c.seqMu.Unlock()

	pose, err := c.Stop(ctx)
	if err != nil {
		return pose, err
	}
	for _, h := range seqs {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return c.Pose(), ctx.Err()
		}
	}
	if err := c.motion.StopAll(ctx); err != nil {
		return pose, err
	}
	pose = c.Pose()
	c.log.Info("all motion cancelled", "pose", pose)
	return pose, nil
}

type ownerKey struct{}

// sequenceOwner returns the sequence a step runs for, or nil for outside callers.
func sequenceOwner(ctx context.Context) *Handle {
	h, _ := ctx.Value(ownerKey{}).(*Handle)
	return h
}

// newSequence returns the handle of a sequence and the context its steps run with.
// Cancelling the handle cancels the context.
func (c *Controller) newSequence() (*Handle, context.Context) {
	ctx, cancel := context.WithCancel(c.life)
	h := newHandle(cancel)
	return h, context.WithValue(ctx, ownerKey{}, h)
}

// reserve claims every axis for the sequence h so that no outside move can slip in
// between its steps. Runs on the loop.
func reserve(st *state, h *Handle) error {
	for _, a := range Axes {
		if st.active[a] != nil || st.reserved[a] != nil {
			return busy(a)
		}
	}
	for _, a := range Axes {
		st.reserved[a] = h
	}
	return nil
}

// launch runs fn for the reserved sequence h in the background and releases its axes
// before h completes.
func (c *Controller) launch(ctx context.Context, h *Handle, fn func(ctx context.Context) (Pose, error)) {
	c.seqMu.Lock()
	c.seqs[h] = struct{}{}
	c.seqMu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		pose, err := fn(ctx)
		h.Cancel()

		c.exec(func(st *state) {
			for _, a := range Axes {
				if st.reserved[a] == h {
					st.reserved[a] = nil
				}
			}
		})
		c.seqMu.Lock()
		delete(c.seqs, h)
		c.seqMu.Unlock()
		h.finish(pose, err)
	}()
}

// Close stops all motion and shuts the loop down. The bound device is not closed.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if _, err := c.CancelAll(ctx); err != nil {
			c.log.Warn("stop on close failed", "error", err)
		}
		cancel()
		c.stopLife()
		close(c.quit)
		c.wg.Wait()
		<-c.loopDone
	})
	return nil
}
