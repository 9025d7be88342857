// Package events subscribes to the scheduling backend's socket.io gateway
// so the bot hears about appointment and calendar changes made elsewhere
// while a call is in progress.
package events

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/worldofdoors/doorbot/internal/ctxlog"
)

// subscribedEvents are the backend notifications the bot reacts to. Any
// of them can invalidate availability the bot already quoted.
var subscribedEvents = []string{
	"appointment.created",
	"appointment.updated",
	"appointment.cancelled",
	"calendar.updated",
}

// Handler receives one backend event with its raw payload.
type Handler func(event string, payload any)

// Listener is the gateway subscription. It is optional: with no gateway
// URL configured the bot simply runs without live invalidation.
type Listener struct {
	gatewayURL string
	handler    Handler

	connected atomic.Bool
	manager   *socket.Manager
	io        *socket.Socket
}

// NewListener creates a listener. Start must be called to connect.
func NewListener(gatewayURL string, handler Handler) *Listener {
	return &Listener{gatewayURL: gatewayURL, handler: handler}
}

// Start connects to the gateway in the background. A missing URL disables
// the listener; a connection failure is logged, not fatal, because the
// bot can take calls without live event feeds.
func (l *Listener) Start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("component", "events")

	if l.gatewayURL == "" {
		logger.Info("No gateway URL configured, event listener disabled")
		return nil
	}

	parsedURL, err := url.Parse(l.gatewayURL)
	if err != nil {
		return fmt.Errorf("failed to parse gateway URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	l.manager = socket.NewManager(baseURL, opts)
	l.io = l.manager.Socket("/", opts)

	l.io.On(types.EventName("connect"), func(...any) {
		l.connected.Store(true)
		logger.Info("✅ Connected to backend gateway", "sid", l.io.Id())
	})

	l.io.On(types.EventName("connect_error"), func(errs ...any) {
		if l.connected.Load() {
			return
		}
		logger.Warn("Backend gateway unreachable, continuing without live events", "error", fmt.Sprint(errs...))
	})

	l.io.On(types.EventName("disconnect"), func(...any) {
		l.connected.Store(false)
		logger.Warn("Disconnected from backend gateway")
	})

	for _, event := range subscribedEvents {
		event := event
		l.io.On(types.EventName(event), func(data ...any) {
			var payload any
			if len(data) > 0 {
				payload = data[0]
			}
			logger.Debug("Backend event received", "event", event)
			if l.handler != nil {
				l.handler(event, payload)
			}
		})
	}

	logger.Info("📡 Connecting to backend gateway", "url", baseURL)
	l.io.Connect()
	return nil
}

// Connected reports whether the gateway subscription is live.
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

// Stop disconnects from the gateway.
func (l *Listener) Stop(ctx context.Context) {
	if l.io == nil {
		return
	}
	ctxlog.FromContext(ctx).Debug("Disconnecting from backend gateway")
	l.io.Disconnect()
}
