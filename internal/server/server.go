// Package server exposes the Twilio webhook and the operational HTTP
// endpoints. The inbound-call handler provisions a SIP room, spawns a call
// session in the background, and answers Twilio with TwiML that bridges the
// caller into the room.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/worldofdoors/doorbot/internal/config"
	"github.com/worldofdoors/doorbot/internal/ctxlog"
	"github.com/worldofdoors/doorbot/internal/daily"
	"github.com/worldofdoors/doorbot/internal/session"
	"github.com/worldofdoors/doorbot/internal/twiml"
)

// SessionFactory builds a session for one inbound call.
type SessionFactory func(params session.Params) *session.Session

// Server is the HTTP face of the voice agent.
type Server struct {
	cfg        *config.Config
	rooms      *daily.Service
	registry   *session.Registry
	newSession SessionFactory

	// baseCtx outlives individual requests. Spawned sessions run on it so
	// they survive the webhook response.
	baseCtx context.Context
	httpSrv *http.Server
}

// New assembles the server. Start brings it online.
func New(cfg *config.Config, rooms *daily.Service, registry *session.Registry, newSession SessionFactory) *Server {
	return &Server{
		cfg:        cfg,
		rooms:      rooms,
		registry:   registry,
		newSession: newSession,
		baseCtx:    context.Background(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /inbound-call", s.handleInboundCall)
	mux.HandleFunc("POST /end-call/{callSid}", s.handleEndCall)
	mux.HandleFunc("GET /active-calls", s.handleActiveCalls)
	return mux
}

// Start runs the webhook server in the background. Failures after startup
// are logged rather than returned, matching the lifecycle of the rest of
// the app: the signal handler decides when everything stops.
func (s *Server) Start(ctx context.Context) {
	s.baseCtx = ctx
	logger := ctxlog.FromContext(ctx)

	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("📡 Webhook server starting", "address", fmt.Sprintf("http://localhost%s", addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Webhook server failed unexpectedly", "error", err)
		}
	}()
}

// Shutdown ends every active call and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	for _, callSid := range s.registry.CallSids() {
		if sess, ok := s.registry.Get(callSid); ok {
			sess.End(ctx)
		}
	}

	if s.httpSrv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	logger.Info("📡 Shutting down webhook server...")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Webhook server shutdown failed", "error", err)
		return err
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":          "healthy",
		"service":         "World of Doors Voice Bot",
		"active_sessions": s.registry.Len(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(s.baseCtx).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr)
	writeJSON(w, map[string]any{
		"status":           "healthy",
		"environment":      s.cfg.Server.Environment,
		"daily_configured": !s.rooms.Mock(),
		"nestjs_api":       s.cfg.Backend.BaseURL,
		"active_bots":      s.registry.Len(),
	})
}

// handleInboundCall is the Twilio voice webhook. Twilio retries deliveries,
// so an already-active call SID gets an empty TwiML document instead of a
// second session.
func (s *Server) handleInboundCall(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(s.baseCtx)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	callSid := r.PostFormValue("CallSid")
	if callSid == "" {
		http.Error(w, "Missing CallSid in request", http.StatusBadRequest)
		return
	}
	caller := r.PostFormValue("From")
	if caller == "" {
		caller = "unknown-caller"
	}
	logger.Info("📞 Incoming call", "caller", caller, "call_sid", callSid)

	if _, active := s.registry.Get(callSid); active {
		logger.Warn("Duplicate webhook delivery for active call", "call_sid", callSid)
		s.writeTwiML(w, twiml.New())
		return
	}

	sip, err := s.rooms.ConfigureSIP(r.Context(), "wod-"+callSid)
	if err != nil {
		logger.Error("Error creating Daily room", "call_sid", callSid, "error", err)
		http.Error(w, "Failed to create Daily room", http.StatusInternalServerError)
		return
	}
	if sip.SIPEndpoint == "" {
		logger.Error("No SIP endpoint provided by Daily", "room", sip.RoomName)
		http.Error(w, "No SIP endpoint provided by Daily", http.StatusInternalServerError)
		return
	}
	logger.Info("✓ Created Daily room with SIP endpoint", "room", sip.RoomName, "sip", sip.SIPEndpoint)

	sess := s.newSession(session.Params{
		CallSid:     callSid,
		CallerPhone: caller,
		RoomURL:     sip.RoomURL,
		RoomName:    sip.RoomName,
		Token:       sip.Token,
	})
	if !s.registry.Add(sess) {
		s.writeTwiML(w, twiml.New())
		return
	}
	go s.runSession(sess)

	s.writeTwiML(w, twiml.New().WithSay("Please hold...").WithDialSip(sip.SIPEndpoint))
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	callSid := r.PathValue("callSid")

	sess, ok := s.registry.Get(callSid)
	if !ok {
		writeJSON(w, map[string]any{"status": "call not found", "call_sid": callSid})
		return
	}

	sess.End(ctxlog.WithLogger(r.Context(), ctxlog.FromContext(s.baseCtx)))
	writeJSON(w, map[string]any{"status": "call ended", "call_sid": callSid})
}

func (s *Server) handleActiveCalls(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"active_calls": s.registry.CallSids(),
		"count":        s.registry.Len(),
	})
}

// runSession drives one call to completion and always releases its slot in
// the registry, even when the session errors out.
func (s *Server) runSession(sess *session.Session) {
	logger := ctxlog.FromContext(s.baseCtx)

	defer func() {
		s.registry.Remove(sess.CallSid())
		logger.Info("♻️ Cleaned up call session", "call_sid", sess.CallSid())
	}()

	if err := sess.Run(s.baseCtx); err != nil {
		logger.Error("Call session failed", "call_sid", sess.CallSid(), "error", err)
	}
}

// writeTwiML renders a voice response. If rendering fails the caller hears
// an apology instead of silence.
func (s *Server) writeTwiML(w http.ResponseWriter, resp *twiml.Response) {
	body, err := resp.Render()
	if err != nil {
		ctxlog.FromContext(s.baseCtx).Error("Failed to render TwiML", "error", err)
		body, _ = twiml.New().
			WithSay("We're sorry, but we're experiencing technical difficulties. Please try again later.").
			Render()
	}
	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, body)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
