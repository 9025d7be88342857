// Package app wires the voice agent together: configuration, logging, the
// backend client, room provisioning, the LLM service, the gateway event
// listener, and the webhook server.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/worldofdoors/doorbot/internal/appointment"
	"github.com/worldofdoors/doorbot/internal/backend"
	"github.com/worldofdoors/doorbot/internal/cli"
	"github.com/worldofdoors/doorbot/internal/config"
	"github.com/worldofdoors/doorbot/internal/ctxlog"
	"github.com/worldofdoors/doorbot/internal/daily"
	"github.com/worldofdoors/doorbot/internal/events"
	"github.com/worldofdoors/doorbot/internal/llm"
	"github.com/worldofdoors/doorbot/internal/server"
	"github.com/worldofdoors/doorbot/internal/session"
)

// availabilityTTL bounds how long a quoted calendar answer may be reused
// before the backend is asked again.
const availabilityTTL = 5 * time.Minute

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	cfg    *config.Config

	api      *backend.Client
	rooms    *daily.Service
	model    llm.Service
	cache    *appointment.AvailabilityCache
	registry *session.Registry
	listener *events.Listener
	server   *server.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger.
func NewApp(outW io.Writer, opts *cli.Options) (*App, error) {
	logger := newLogger(opts.LogLevel, opts.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(ctx, opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Debug("Configuration resolved.", "environment", cfg.Server.Environment)

	roomTTL, err := cfg.RoomTTL()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Without a media gateway the service only answers webhooks, so a
	// missing LLM key is survivable there and fatal everywhere else.
	model, err := llm.NewService(cfg.LLM)
	if err != nil {
		if cfg.MediaGatewayURL != "" {
			return nil, err
		}
		logger.Warn("LLM service unavailable, running webhook-only", "error", err)
	}

	a := &App{
		outW:   outW,
		logger: logger,
		cfg:    cfg,
		api:    backend.New(cfg.Backend.BaseURL),
		rooms: daily.New(cfg.Daily.APIKey, daily.Options{
			APIURL:      cfg.Daily.APIURL,
			RoomTTL:     roomTTL,
			DisplayName: cfg.Bot.DisplayName,
		}),
		model:    model,
		cache:    appointment.NewAvailabilityCache(availabilityTTL),
		registry: session.NewRegistry(),
	}

	a.listener = events.NewListener(cfg.Backend.GatewayURL, func(event string, _ any) {
		logger.Info("📅 Calendar changed, dropping cached availability", "event", event)
		a.cache.Invalidate()
	})
	a.server = server.New(cfg, a.rooms, a.registry, a.newSession)

	return a, nil
}

// newSession builds one call session over the app-wide dependencies.
func (a *App) newSession(params session.Params) *session.Session {
	return session.New(a.cfg, a.api, a.model, a.cache, params)
}

// Registry returns the session registry. This is primarily for testing.
func (a *App) Registry() *session.Registry {
	return a.registry
}
