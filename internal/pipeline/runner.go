package pipeline

import (
	"context"

	"github.com/worldofdoors/doorbot/internal/ctxlog"
)

// Runner executes tasks. It exists so a session owns one object with a
// blocking Run and the serving layer decides the goroutine structure.
type Runner struct{}

// NewRunner creates a runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run blocks until the pipeline finishes. The transport opens the session
// by queueing a StartFrame when the caller actually joins. Returning nil
// means the call ended or was cancelled; an error means a stage failed.
func (r *Runner) Run(ctx context.Context, task *Task) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("🚀 Pipeline run starting")

	err := task.run(ctx)

	if err != nil {
		logger.Error("Pipeline run failed", "error", err)
		return err
	}
	logger.Info("🏁 Pipeline run finished")
	return nil
}
