package ptz

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Clamp records an absolute target that was pulled into range.
type Clamp struct {
	Axis      Axis    `json:"axis"`
	Requested float64 `json:"requested"`
	Target    float64 `json:"target"`
}

// Handle tracks an in-flight move or move sequence.
type Handle struct {
	ID uuid.UUID

	done    chan struct{}
	once    sync.Once
	pose    Pose
	err     error
	clamped []Clamp

	cancelOnce sync.Once
	cancel     func()
}

func newHandle(cancel func()) *Handle {
	return &Handle{
		ID:     uuid.New(),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// doneHandle returns a handle that has already completed with pose.
func doneHandle(pose Pose) *Handle {
	h := newHandle(nil)
	h.finish(pose, nil)
	return h
}

func (h *Handle) finish(pose Pose, err error) {
	h.once.Do(func() {
		h.pose = pose
		h.err = err
		close(h.done)
	})
}

// Done is closed once the pose for this operation has been committed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel requests cancellation. It does not wait; use Wait for the committed pose.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
	})
}

// Wait blocks until the operation completes or ctx is done. Returning because of ctx
// leaves the operation running.
func (h *Handle) Wait(ctx context.Context) (Pose, error) {
	select {
	case <-h.done:
		return h.pose, h.err
	case <-ctx.Done():
		return Pose{}, ctx.Err()
	}
}

// Result returns the committed pose and error. It must only be called after Done.
func (h *Handle) Result() (Pose, error) {
	<-h.done
	return h.pose, h.err
}

// Clamped lists targets that were pulled into range before the move started.
func (h *Handle) Clamped() []Clamp {
	return h.clamped
}

// await waits for h, cancelling it if ctx ends first. The committed pose is always
// returned, with ctx's error when the wait was cut short.
func await(ctx context.Context, h *Handle) (Pose, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		h.Cancel()
		<-h.done
		if h.err != nil {
			return h.pose, h.err
		}
		return h.pose, ctx.Err()
	}
	return h.pose, h.err
}
