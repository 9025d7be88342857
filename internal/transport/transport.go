// Package transport bridges call audio between the media gateway and the
// pipeline. The gateway terminates the telephony leg and speaks a small
// JSON protocol over a websocket: start and stop events around the call,
// media events carrying base64 PCM in both directions.
package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/worldofdoors/doorbot/internal/ctxlog"
	"github.com/worldofdoors/doorbot/internal/pipeline"
)

// defaultSampleRate applies when the gateway's start event does not
// declare one. Telephony audio is 8 kHz.
const defaultSampleRate = 8000

// message is one gateway protocol frame.
type message struct {
	Event       string `json:"event"`
	CallSid     string `json:"callSid,omitempty"`
	Participant string `json:"participant,omitempty"`
	SampleRate  int    `json:"sampleRate,omitempty"`
	Payload     string `json:"payload,omitempty"`
}

// Transport is one call's media bridge.
type Transport struct {
	conn       *websocket.Conn
	writeMu    sync.Mutex
	sampleRate int

	onJoined       func(participantID string)
	onDisconnected func()
}

// Dial connects to the media gateway for one call.
func Dial(ctx context.Context, gatewayURL, callSid, roomURL string) (*Transport, error) {
	query := url.Values{}
	query.Set("call_sid", callSid)
	query.Set("room", roomURL)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, gatewayURL+"?"+query.Encode(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing media gateway (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing media gateway: %w", err)
	}
	return &Transport{conn: conn, sampleRate: defaultSampleRate}, nil
}

// OnParticipantJoined registers the callback fired when the caller lands
// on the media leg. Must be set before Run.
func (t *Transport) OnParticipantJoined(fn func(participantID string)) {
	t.onJoined = fn
}

// OnClientDisconnected registers the callback fired when the caller drops
// without a graceful goodbye. Must be set before Run.
func (t *Transport) OnClientDisconnected(fn func()) {
	t.onDisconnected = fn
}

// Run pumps gateway events into the task until the call ends. It returns
// nil when the gateway closes the stream; the disconnect callback decides
// what that means for the session.
func (t *Transport) Run(ctx context.Context, task *pipeline.Task) error {
	logger := ctxlog.FromContext(ctx)

	for {
		var msg message
		if err := t.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				t.disconnected()
				return nil
			}
			t.disconnected()
			return fmt.Errorf("reading media stream: %w", err)
		}

		switch msg.Event {
		case "connected":
			logger.Debug("Media gateway connected.")

		case "start":
			if msg.SampleRate > 0 {
				t.sampleRate = msg.SampleRate
			}
			logger.Info("📡 Caller joined media stream", "participant", msg.Participant, "sample_rate", t.sampleRate)
			if t.onJoined != nil {
				t.onJoined(msg.Participant)
			}
			task.QueueFrame(pipeline.StartFrame{})

		case "media":
			pcm, err := base64.StdEncoding.DecodeString(msg.Payload)
			if err != nil {
				logger.Warn("Dropping malformed media payload", "error", err)
				continue
			}
			task.QueueFrame(pipeline.AudioInputFrame{PCM: pcm, SampleRate: t.sampleRate})

		case "stop":
			logger.Info("Caller left media stream")
			t.disconnected()
			return nil

		default:
			logger.Debug("Ignoring gateway event", "event", msg.Event)
		}
	}
}

func (t *Transport) disconnected() {
	if t.onDisconnected != nil {
		fn := t.onDisconnected
		t.onDisconnected = nil
		fn()
	}
}

// writeMessage serializes one frame to the gateway.
func (t *Transport) writeMessage(msg message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(msg)
}

// Close tears the socket down.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// Output returns the pipeline stage that plays synthesized audio back to
// the caller.
func (t *Transport) Output() pipeline.Processor {
	return &output{transport: t}
}

type output struct {
	transport *Transport
}

func (o *output) Name() string { return "transport-output" }

func (o *output) Process(ctx context.Context, frame pipeline.Frame, out chan<- pipeline.Frame) error {
	switch f := frame.(type) {
	case pipeline.AudioOutputFrame:
		msg := message{Event: "media", Payload: base64.StdEncoding.EncodeToString(f.PCM)}
		if err := o.transport.writeMessage(msg); err != nil {
			return fmt.Errorf("writing audio to gateway: %w", err)
		}
		return nil

	case pipeline.EndFrame:
		// Tell the gateway playback is done before the pipeline unwinds.
		if err := o.transport.writeMessage(message{Event: "stop"}); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to signal stop to gateway", "error", err)
		}
		return pipeline.Forward(ctx, out, frame)

	default:
		return pipeline.Forward(ctx, out, frame)
	}
}
