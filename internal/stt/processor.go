package stt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/worldofdoors/doorbot/internal/config"
	"github.com/worldofdoors/doorbot/internal/ctxlog"
	"github.com/worldofdoors/doorbot/internal/pipeline"
)

// drainTimeout bounds how long the stage waits for trailing results after
// the stream is closed.
const drainTimeout = 2 * time.Second

// Processor is the transcription pipeline stage. It opens the Deepgram
// stream when the call starts, feeds it caller audio, and emits interim
// and final transcription frames. It also raises the barge-in interrupt
// the moment the caller is heard, so queued bot speech gets dropped.
type Processor struct {
	cfg       Config
	interrupt *pipeline.Interrupt

	// dial is swappable for tests.
	dial func(ctx context.Context) (*Client, error)

	client   *Client
	segments []string
}

// NewProcessor builds the stage from service configuration.
func NewProcessor(cfg config.STT, sampleRate int, interrupt *pipeline.Interrupt) *Processor {
	clientCfg := Config{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Language:   cfg.Language,
		SampleRate: sampleRate,
	}
	p := &Processor{cfg: clientCfg, interrupt: interrupt}
	p.dial = func(ctx context.Context) (*Client, error) {
		return Dial(ctx, p.cfg)
	}
	return p
}

// Name implements pipeline.Processor.
func (p *Processor) Name() string { return "transcription" }

// Process implements pipeline.Processor.
func (p *Processor) Process(ctx context.Context, frame pipeline.Frame, out chan<- pipeline.Frame) error {
	switch f := frame.(type) {
	case pipeline.StartFrame:
		client, err := p.dial(ctx)
		if err != nil {
			return fmt.Errorf("opening transcription stream: %w", err)
		}
		p.client = client
		ctxlog.FromContext(ctx).Info("📡 Transcription stream opened", "model", p.cfg.Model)
		return pipeline.Forward(ctx, out, frame)

	case pipeline.AudioInputFrame:
		if p.client == nil {
			return nil
		}
		if err := p.client.SendAudio(f.PCM); err != nil {
			return fmt.Errorf("sending audio: %w", err)
		}
		return p.emitPending(ctx, out)

	case pipeline.EndFrame:
		p.shutdown(ctx, out)
		return pipeline.Forward(ctx, out, frame)

	case pipeline.CancelFrame:
		_ = p.Close()
		return pipeline.Forward(ctx, out, frame)

	default:
		return pipeline.Forward(ctx, out, frame)
	}
}

// Close drops the transcription stream. The pipeline calls it when the
// stage unwinds, which is the only teardown a hang-up gets: Task.Cancel
// closes the source without an EndFrame, so shutdown never runs.
func (p *Processor) Close() error {
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

// emitPending drains whatever results have arrived without blocking the
// audio path.
func (p *Processor) emitPending(ctx context.Context, out chan<- pipeline.Frame) error {
	for {
		select {
		case result, ok := <-p.client.Results():
			if !ok {
				if err := p.client.Err(); err != nil {
					return fmt.Errorf("transcription stream: %w", err)
				}
				p.client = nil
				return nil
			}
			if err := p.emit(ctx, out, result); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// emit converts one result to frames. Settled segments accumulate until
// the utterance ends, matching how people pause mid-sentence on the phone.
func (p *Processor) emit(ctx context.Context, out chan<- pipeline.Frame, result Result) error {
	if strings.TrimSpace(result.Text) != "" {
		p.interrupt.Raise()
	}

	if !result.Final {
		return pipeline.Forward(ctx, out, pipeline.TranscriptionFrame{Text: result.Text})
	}

	if strings.TrimSpace(result.Text) != "" {
		p.segments = append(p.segments, strings.TrimSpace(result.Text))
	}
	if !result.SpeechFinal || len(p.segments) == 0 {
		return nil
	}

	utterance := strings.Join(p.segments, " ")
	p.segments = p.segments[:0]
	return pipeline.Forward(ctx, out, pipeline.TranscriptionFrame{Text: utterance, Final: true})
}

// shutdown closes the stream and flushes trailing results so the last
// utterance is not lost on a graceful end.
func (p *Processor) shutdown(ctx context.Context, out chan<- pipeline.Frame) {
	if p.client == nil {
		return
	}
	logger := ctxlog.FromContext(ctx)
	_ = p.client.CloseStream()

	deadline := time.NewTimer(drainTimeout)
	defer deadline.Stop()
	for {
		select {
		case result, ok := <-p.client.Results():
			if !ok {
				_ = p.client.Close()
				p.client = nil
				return
			}
			if err := p.emit(ctx, out, result); err != nil {
				logger.Warn("Dropping trailing transcription", "error", err)
			}
		case <-deadline.C:
			logger.Warn("Transcription stream slow to drain, closing")
			_ = p.client.Close()
			p.client = nil
			return
		case <-ctx.Done():
			_ = p.client.Close()
			p.client = nil
			return
		}
	}
}
