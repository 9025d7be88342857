package app

import (
	"context"
	"time"

	"github.com/worldofdoors/doorbot/internal/ctxlog"
)

// Run brings the service online and blocks until ctx is cancelled, then
// shuts everything down in order: no new webhooks, end active calls, drop
// the gateway subscription.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.logger.Info("🚀 Starting World of Doors voice agent",
		"port", a.cfg.Server.Port,
		"environment", a.cfg.Server.Environment,
		"llm_provider", a.cfg.LLM.Provider,
		"daily_mock", a.rooms.Mock(),
	)

	if err := a.listener.Start(ctx); err != nil {
		return err
	}
	a.server.Start(ctx)

	<-ctx.Done()
	a.logger.Info("Shutdown signal received.")

	// The signal context is already cancelled, so shutdown gets its own.
	shutdownCtx, cancel := context.WithTimeout(
		ctxlog.WithLogger(context.Background(), a.logger), 10*time.Second)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	a.listener.Stop(shutdownCtx)

	a.logger.Info("🏁 Voice agent stopped.", "active_sessions", a.registry.Len())
	return err
}
