// Package stt streams caller audio to Deepgram's live transcription API
// over a websocket and turns the results into transcription frames.
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultURL is the Deepgram live transcription endpoint.
const DefaultURL = "wss://api.deepgram.com/v1/listen"

// Config selects the transcription model and audio format.
type Config struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int

	// URL overrides the endpoint, used by tests.
	URL string
}

// Result is one transcription message. Final marks a settled segment;
// SpeechFinal marks the end of the utterance.
type Result struct {
	Text        string
	Final       bool
	SpeechFinal bool
}

// Client is one live transcription stream.
type Client struct {
	conn    *websocket.Conn
	results chan Result
	errs    chan error

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial opens the stream. Audio is raw 16-bit little-endian mono PCM.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	endpoint := cfg.URL
	if endpoint == "" {
		endpoint = DefaultURL
	}

	query := url.Values{}
	query.Set("model", cfg.Model)
	query.Set("language", cfg.Language)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	query.Set("channels", "1")
	query.Set("interim_results", "true")
	query.Set("punctuate", "true")
	query.Set("endpointing", "300")

	header := http.Header{}
	header.Set("Authorization", "Token "+cfg.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, endpoint+"?"+query.Encode(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing deepgram (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing deepgram: %w", err)
	}

	c := &Client{
		conn:    conn,
		results: make(chan Result, 32),
		errs:    make(chan error, 1),
	}
	go c.readLoop()
	return c, nil
}

// deepgramMessage is the subset of the live API response the bot uses.
type deepgramMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Speech  bool   `json:"speech_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (c *Client) readLoop() {
	defer close(c.results)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case c.errs <- err:
				default:
				}
			}
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		if msg.Type != "Results" || len(msg.Channel.Alternatives) == 0 {
			continue
		}

		text := msg.Channel.Alternatives[0].Transcript
		if text == "" && !msg.Speech {
			continue
		}
		c.results <- Result{Text: text, Final: msg.IsFinal, SpeechFinal: msg.Speech}
	}
}

// SendAudio streams one chunk of caller audio.
func (c *Client) SendAudio(pcm []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// KeepAlive holds the stream open across caller silence.
func (c *Client) KeepAlive() error {
	return c.writeControl("KeepAlive")
}

// CloseStream tells the server no more audio is coming; remaining results
// still arrive before the server closes the socket.
func (c *Client) CloseStream() error {
	return c.writeControl("CloseStream")
}

func (c *Client) writeControl(messageType string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"type":%q}`, messageType)))
}

// Results delivers transcription results until the stream ends.
func (c *Client) Results() <-chan Result {
	return c.results
}

// Err reports a stream failure, if one occurred.
func (c *Client) Err() error {
	select {
	case err := <-c.errs:
		return err
	default:
		return nil
	}
}

// Close tears the socket down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}
