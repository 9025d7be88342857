// Package session owns one phone call end to end: pipeline assembly, the
// conversation flow, the media bridge, and the call outcome.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/worldofdoors/doorbot/internal/appointment"
	"github.com/worldofdoors/doorbot/internal/backend"
	"github.com/worldofdoors/doorbot/internal/config"
	"github.com/worldofdoors/doorbot/internal/ctxlog"
	"github.com/worldofdoors/doorbot/internal/flow"
	"github.com/worldofdoors/doorbot/internal/llm"
	"github.com/worldofdoors/doorbot/internal/pipeline"
	"github.com/worldofdoors/doorbot/internal/stt"
	"github.com/worldofdoors/doorbot/internal/transport"
	"github.com/worldofdoors/doorbot/internal/tts"
)

// Params identifies one call and the room provisioned for it.
type Params struct {
	CallSid     string
	CallerPhone string
	RoomURL     string
	RoomName    string
	Token       string
}

// Session is one live call.
type Session struct {
	params Params
	cfg    *config.Config
	api    *backend.Client
	model  llm.Service
	cache  *appointment.AvailabilityCache

	flow    *appointment.Flow
	manager *flow.Manager

	mu      sync.Mutex
	task    *pipeline.Task
	started time.Time
	done    chan struct{}
	endOnce sync.Once
}

// New prepares a session. Run does the actual work.
func New(cfg *config.Config, api *backend.Client, model llm.Service, cache *appointment.AvailabilityCache, params Params) *Session {
	manager := flow.NewManager()
	return &Session{
		params:  params,
		cfg:     cfg,
		api:     api,
		model:   model,
		cache:   cache,
		manager: manager,
		flow:    appointment.New(api, manager.Store(), cache, cfg.Bot, time.Now),
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

// CallSid identifies the session.
func (s *Session) CallSid() string { return s.params.CallSid }

// StartedAt reports when the session was created.
func (s *Session) StartedAt() time.Time { return s.started }

// Outcome reports how the call ended: BOOKED, RESCHEDULED, CANCELLED,
// NOT_INTERESTED, or NO_RESPONSE while nothing terminal happened yet.
func (s *Session) Outcome() string { return s.flow.Outcome() }

// Run drives the call until it ends and always cleans up. Without a media
// gateway configured the session idles until ended externally, which keeps
// webhook handling alive in environments without audio infrastructure.
func (s *Session) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("call_sid", s.params.CallSid)
	ctx = ctxlog.WithLogger(ctx, logger)

	logger.Info("🚀 Starting call session", "caller", s.params.CallerPhone, "room", s.params.RoomName)
	defer s.cleanup(ctx)

	if s.cfg.MediaGatewayURL == "" {
		logger.Warn("No media gateway configured, session idles until ended")
		select {
		case <-s.done:
		case <-ctx.Done():
		}
		return nil
	}

	bridge, err := transport.Dial(ctx, s.cfg.MediaGatewayURL, s.params.CallSid, s.params.RoomURL)
	if err != nil {
		return fmt.Errorf("connecting media bridge: %w", err)
	}
	defer bridge.Close()

	interrupt := pipeline.NewInterrupt()
	conversation := llm.NewConversation(s.model, s.manager, interrupt)

	task := pipeline.NewTask(pipeline.New(
		stt.NewProcessor(s.cfg.STT, 8000, interrupt),
		conversation,
		tts.NewProcessor(s.cfg.TTS, interrupt),
		bridge.Output(),
	))
	s.mu.Lock()
	s.task = task
	s.mu.Unlock()

	conversation.OnStart(func(ctx context.Context) error {
		s.flow.InitializeCaller(ctx, s.params.CallerPhone)
		s.manager.Initialize(ctx, s.flow.InitialNode(false))
		return nil
	})
	conversation.OnEndCall(func() {
		task.QueueFrame(pipeline.EndFrame{})
	})

	bridge.OnParticipantJoined(func(participantID string) {
		logger.Info("Participant joined", "participant", participantID)
	})
	bridge.OnClientDisconnected(func() {
		logger.Info("Caller disconnected, cancelling pipeline")
		task.Cancel()
	})

	go func() {
		if err := bridge.Run(ctx, task); err != nil {
			logger.Error("Media bridge failed", "error", err)
			task.Cancel()
		}
	}()

	return pipeline.NewRunner().Run(ctx, task)
}

// End finishes the call gracefully from outside the conversation, used by
// the manual end-call endpoint.
func (s *Session) End(ctx context.Context) {
	ctxlog.FromContext(ctx).Info("Ending call session", "call_sid", s.params.CallSid)

	s.mu.Lock()
	task := s.task
	s.mu.Unlock()

	if task != nil {
		task.QueueFrame(pipeline.EndFrame{})
	}
	s.endOnce.Do(func() { close(s.done) })
}

func (s *Session) cleanup(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	outcome := s.flow.Outcome()
	logger.Info("🏁 Call session finished", "call_sid", s.params.CallSid, "outcome", outcome,
		"duration", time.Since(s.started).Round(time.Second))
}
