package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worldofdoors/doorbot/internal/config"
	"github.com/worldofdoors/doorbot/internal/pipeline"
)

func newTestProcessor(serverURL string) (*Processor, *pipeline.Interrupt) {
	interrupt := pipeline.NewInterrupt()
	p := NewProcessor(config.STT{APIKey: "k", Model: "nova-2-phonecall", Language: "en-US"}, 8000, interrupt)
	p.cfg.URL = serverURL
	return p, interrupt
}

func drainFrames(out chan pipeline.Frame) []pipeline.Frame {
	var frames []pipeline.Frame
	for {
		select {
		case frame := <-out:
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func TestEmit_AccumulatesSegmentsIntoUtterance(t *testing.T) {
	p, interrupt := newTestProcessor("")
	out := make(chan pipeline.Frame, 8)
	ctx := context.Background()

	// Interim keeps flowing, settled segments buffer until speech ends.
	require.NoError(t, p.emit(ctx, out, Result{Text: "I need"}))
	require.NoError(t, p.emit(ctx, out, Result{Text: "I need a quote", Final: true}))
	require.NoError(t, p.emit(ctx, out, Result{Text: "for two windows.", Final: true, SpeechFinal: true}))

	frames := drainFrames(out)
	require.Len(t, frames, 2)

	interim, ok := frames[0].(pipeline.TranscriptionFrame)
	require.True(t, ok)
	assert.False(t, interim.Final)

	final, ok := frames[1].(pipeline.TranscriptionFrame)
	require.True(t, ok)
	assert.True(t, final.Final)
	assert.Equal(t, "I need a quote for two windows.", final.Text)

	assert.Equal(t, uint64(3), interrupt.Epoch(), "every heard chunk raises barge-in")
}

func TestEmit_EmptySpeechFinalWithoutSegmentsIsDropped(t *testing.T) {
	p, _ := newTestProcessor("")
	out := make(chan pipeline.Frame, 8)

	require.NoError(t, p.emit(context.Background(), out, Result{Text: "", Final: true, SpeechFinal: true}))

	assert.Empty(t, drainFrames(out))
}

func TestProcess_EndFrameFlushesTrailingUtterance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Wait for CloseStream, then flush one last result and close.
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType == websocket.TextMessage && string(payload) == `{"type":"CloseStream"}` {
				break
			}
		}
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{
			"type": "Results", "is_final": true, "speech_final": true,
			"channel": {"alternatives": [{"transcript": "goodbye"}]}
		}`)))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	p, _ := newTestProcessor(wsURL(server))
	out := make(chan pipeline.Frame, 8)
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, pipeline.StartFrame{}, out))
	require.NoError(t, p.Process(ctx, pipeline.EndFrame{}, out))

	frames := drainFrames(out)
	require.NotEmpty(t, frames)

	// StartFrame forwarded, trailing utterance flushed, EndFrame last.
	assert.IsType(t, pipeline.StartFrame{}, frames[0])
	assert.IsType(t, pipeline.EndFrame{}, frames[len(frames)-1])

	var sawFinal bool
	for _, frame := range frames {
		if transcription, ok := frame.(pipeline.TranscriptionFrame); ok && transcription.Final {
			sawFinal = true
			assert.Equal(t, "goodbye", transcription.Text)
		}
	}
	assert.True(t, sawFinal, "trailing utterance should flush before EndFrame")
}

func TestClose_ReleasesStreamOnHangUp(t *testing.T) {
	serverSawClose := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(serverSawClose)
				return
			}
		}
	}))
	defer server.Close()

	p, _ := newTestProcessor(wsURL(server))
	out := make(chan pipeline.Frame, 8)

	require.NoError(t, p.Process(context.Background(), pipeline.StartFrame{}, out))
	require.NotNil(t, p.client)
	drainFrames(out)

	// A hang-up never delivers an EndFrame; the pipeline releases the
	// stage instead, and the stream must go down with it.
	require.NoError(t, p.Close())
	assert.Nil(t, p.client)

	select {
	case <-serverSawClose:
	case <-time.After(2 * time.Second):
		t.Fatal("transcription stream was not closed on hang-up")
	}

	// Releasing twice is safe, and audio after the hang-up is dropped.
	require.NoError(t, p.Close())
	require.NoError(t, p.Process(context.Background(), pipeline.AudioInputFrame{PCM: []byte{1}}, out))
	assert.Empty(t, drainFrames(out))
}

func TestProcess_AudioBeforeStartIsDropped(t *testing.T) {
	p, _ := newTestProcessor("")
	out := make(chan pipeline.Frame, 1)

	require.NoError(t, p.Process(context.Background(), pipeline.AudioInputFrame{PCM: []byte{1}}, out))

	assert.Empty(t, drainFrames(out))
}
