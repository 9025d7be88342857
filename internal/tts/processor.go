package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/worldofdoors/doorbot/internal/config"
	"github.com/worldofdoors/doorbot/internal/ctxlog"
	"github.com/worldofdoors/doorbot/internal/pipeline"
)

// errInterrupted aborts a synthesis stream when the caller barges in. It
// never propagates past the stage.
var errInterrupted = errors.New("speech interrupted")

// Processor is the synthesis pipeline stage. It turns text frames into
// audio frames and drops speech the caller has already talked over.
type Processor struct {
	client    *Client
	interrupt *pipeline.Interrupt
}

// NewProcessor builds the stage from service configuration.
func NewProcessor(cfg config.TTS, interrupt *pipeline.Interrupt) *Processor {
	return &Processor{
		client:    New(Config{APIKey: cfg.APIKey, VoiceID: cfg.VoiceID}),
		interrupt: interrupt,
	}
}

// Name implements pipeline.Processor.
func (p *Processor) Name() string { return "synthesis" }

// Process implements pipeline.Processor.
func (p *Processor) Process(ctx context.Context, frame pipeline.Frame, out chan<- pipeline.Frame) error {
	text, ok := frame.(pipeline.TextFrame)
	if !ok {
		return pipeline.Forward(ctx, out, frame)
	}

	logger := ctxlog.FromContext(ctx)
	if p.interrupt.Stale(text.Epoch) {
		logger.Debug("Dropping superseded speech", "text", text.Text)
		return nil
	}

	err := p.client.Synthesize(ctx, text.Text, func(pcm []byte) error {
		if p.interrupt.Stale(text.Epoch) {
			return errInterrupted
		}
		return pipeline.Forward(ctx, out, pipeline.AudioOutputFrame{PCM: pcm, SampleRate: SampleRate})
	})
	if errors.Is(err, errInterrupted) {
		logger.Debug("Speech cut off by caller", "text", text.Text)
		return nil
	}
	if err != nil {
		return fmt.Errorf("synthesizing speech: %w", err)
	}
	return nil
}
