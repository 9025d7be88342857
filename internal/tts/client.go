// Package tts synthesizes bot speech through the ElevenLabs streaming
// websocket API and emits the audio as pipeline frames.
package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultURL is the ElevenLabs API host.
const DefaultURL = "wss://api.elevenlabs.io"

// SampleRate of the synthesized PCM stream.
const SampleRate = 16000

// Config selects the voice and model.
type Config struct {
	APIKey  string
	VoiceID string
	ModelID string

	// URL overrides the host, used by tests.
	URL string
}

// Client synthesizes speech. Each utterance uses its own short-lived
// stream, so an interrupted reply never leaves a half-drained socket
// behind.
type Client struct {
	cfg    Config
	dialer websocket.Dialer
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_turbo_v2"
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	return &Client{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

type streamInput struct {
	Text                 string         `json:"text"`
	VoiceSettings        map[string]any `json:"voice_settings,omitempty"`
	XIAPIKey             string         `json:"xi_api_key,omitempty"`
	TryTriggerGeneration bool           `json:"try_trigger_generation,omitempty"`
}

type streamOutput struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Synthesize speaks one utterance, invoking emit for every audio chunk as
// it arrives. An emit error aborts the stream, which is how barge-in cuts
// the bot off mid-sentence.
func (c *Client) Synthesize(ctx context.Context, text string, emit func(pcm []byte) error) error {
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=pcm_16000",
		c.cfg.URL, c.cfg.VoiceID, c.cfg.ModelID)

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dialing elevenlabs (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dialing elevenlabs: %w", err)
	}
	defer conn.Close()

	// Open the stream, send the whole utterance, then flush.
	messages := []streamInput{
		{
			Text:     " ",
			XIAPIKey: c.cfg.APIKey,
			VoiceSettings: map[string]any{
				"stability":        0.5,
				"similarity_boost": 0.8,
			},
		},
		{Text: text + " ", TryTriggerGeneration: true},
		{Text: ""},
	}
	for _, msg := range messages {
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("sending text: %w", err)
		}
	}

	for {
		var output streamOutput
		if err := conn.ReadJSON(&output); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading audio: %w", err)
		}
		if output.Error != "" {
			return fmt.Errorf("elevenlabs %s: %s", output.Error, output.Message)
		}

		if output.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(output.Audio)
			if err != nil {
				return fmt.Errorf("decoding audio chunk: %w", err)
			}
			if err := emit(pcm); err != nil {
				return err
			}
		}
		if output.IsFinal {
			return nil
		}
	}
}
