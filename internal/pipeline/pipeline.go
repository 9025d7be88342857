// Package pipeline is the frame-based processing core of a call session.
// A pipeline is an ordered chain of processors, each running in its own
// goroutine and linked to its neighbors by channels, in the order
// transport input → transcription → conversation → synthesis → transport
// output.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/worldofdoors/doorbot/internal/ctxlog"
)

// Processor is one stage of the pipeline. Process handles a single frame
// and pushes zero or more frames downstream. Frames a stage does not care
// about must be forwarded so control frames traverse the whole chain.
// A stage that holds a live connection also implements io.Closer; the
// pipeline closes it when the stage unwinds, so a cancelled call releases
// the connection even though no EndFrame ever flows.
type Processor interface {
	Name() string
	Process(ctx context.Context, frame Frame, out chan<- Frame) error
}

// Pipeline is an ordered processor chain.
type Pipeline struct {
	processors []Processor
}

// New builds a pipeline from processors in upstream-to-downstream order.
func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// run wires the chain to the source channel and starts one goroutine per
// processor. It returns the sink channel and a channel delivering the
// first processing error, if any.
func (p *Pipeline) run(ctx context.Context, source <-chan Frame) (<-chan Frame, <-chan error) {
	errs := make(chan error, len(p.processors))

	upstream := source
	for _, proc := range p.processors {
		downstream := make(chan Frame, frameBuffer)
		go p.runStage(ctx, proc, upstream, downstream, errs)
		upstream = downstream
	}

	return upstream, errs
}

// frameBuffer sizes the inter-stage channels. Audio arrives in 20ms
// chunks, so a small buffer absorbs jitter without adding latency.
const frameBuffer = 64

// runStage pumps frames through one processor until its input closes.
func (p *Pipeline) runStage(ctx context.Context, proc Processor, in <-chan Frame, out chan<- Frame, errs chan<- error) {
	logger := ctxlog.FromContext(ctx).With("stage", proc.Name())
	logger.Debug("Pipeline stage started.")
	defer func() {
		if closer, ok := proc.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.Warn("Stage close failed.", "error", err)
			}
		}
		close(out)
		logger.Debug("Pipeline stage finished.")
	}()

	for frame := range in {
		if err := proc.Process(ctx, frame, out); err != nil {
			logger.Error("Stage failed to process frame.", "frame", fmt.Sprintf("%T", frame), "error", err)
			// Keep draining so upstream stages do not block; the task
			// tears the pipeline down on the first reported error and
			// stops reading errs, so later reports must not block either.
			select {
			case errs <- fmt.Errorf("stage %s: %w", proc.Name(), err):
			default:
			}
		}
	}
}

// Forward pushes a frame downstream, giving up when the session context
// ends so stages never block on a dead pipeline.
func Forward(ctx context.Context, out chan<- Frame, frame Frame) error {
	select {
	case out <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
