package pipeline

import (
	"context"
	"sync"

	"github.com/worldofdoors/doorbot/internal/ctxlog"
)

// Task is one run of a pipeline. It owns the source channel, so the
// transport and the flow handlers can inject frames (most importantly
// EndFrame, which ends the call gracefully), and it can be cancelled when
// the caller simply hangs up.
type Task struct {
	pipeline *Pipeline

	source chan Frame
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewTask prepares a task for the given pipeline.
func NewTask(p *Pipeline) *Task {
	return &Task{
		pipeline: p,
		source:   make(chan Frame, frameBuffer),
	}
}

// QueueFrame injects a frame at the head of the pipeline. Safe to call
// from any goroutine; frames queued after the task ended are dropped.
func (t *Task) QueueFrame(frame Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.source <- frame
	if _, ok := frame.(EndFrame); ok {
		// Nothing may follow an EndFrame; close so stages drain and exit.
		t.closed = true
		close(t.source)
	}
}

// Cancel aborts the task immediately.
func (t *Task) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// run executes the pipeline until the EndFrame drains through, an error
// occurs, or the context is cancelled. A cancelled context is the normal
// hang-up path and is not an error.
func (t *Task) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	sink, errs := t.pipeline.run(ctx, t.source)

	for {
		select {
		case frame, ok := <-sink:
			if !ok {
				// Source closed and every stage drained.
				logger.Debug("Pipeline drained.")
				return nil
			}
			if _, isEnd := frame.(EndFrame); isEnd {
				logger.Info("EndFrame reached end of pipeline.")
			}
		case err := <-errs:
			t.closeSource()
			return err
		case <-ctx.Done():
			logger.Info("Task cancelled.")
			t.closeSource()
			return nil
		}
	}
}

// closeSource shuts the head of the pipeline so every stage unwinds.
func (t *Task) closeSource() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.source)
	}
}
