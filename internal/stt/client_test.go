package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

// wsURL rewrites an httptest server URL to the websocket scheme.
func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDial_SendsAuthAndStreamParameters(t *testing.T) {
	received := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token dg-test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "nova-2-phonecall", r.URL.Query().Get("model"))
		assert.Equal(t, "en-US", r.URL.Query().Get("language"))
		assert.Equal(t, "linear16", r.URL.Query().Get("encoding"))
		assert.Equal(t, "8000", r.URL.Query().Get("sample_rate"))
		assert.Equal(t, "true", r.URL.Query().Get("interim_results"))

		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		messageType, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, messageType)
		received <- payload
	}))
	defer server.Close()

	client, err := Dial(context.Background(), Config{
		APIKey:     "dg-test-key",
		Model:      "nova-2-phonecall",
		Language:   "en-US",
		SampleRate: 8000,
		URL:        wsURL(server),
	})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.SendAudio([]byte{0x01, 0x02, 0x03}))

	select {
	case payload := <-received:
		assert.Equal(t, []byte{0x01, 0x02, 0x03}, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the audio chunk")
	}
}

func TestClient_DeliversResultsUntilNormalClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{
			"type": "Results", "is_final": false, "speech_final": false,
			"channel": {"alternatives": [{"transcript": "I need a"}]}
		}`)))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{
			"type": "Results", "is_final": true, "speech_final": true,
			"channel": {"alternatives": [{"transcript": "I need a new front door."}]}
		}`)))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	client, err := Dial(context.Background(), Config{APIKey: "k", Model: "nova-2-phonecall", Language: "en-US", SampleRate: 8000, URL: wsURL(server)})
	require.NoError(t, err)
	defer client.Close()

	var results []Result
	for result := range client.Results() {
		results = append(results, result)
	}

	require.NoError(t, client.Err())
	require.Len(t, results, 2)
	assert.False(t, results[0].Final)
	assert.True(t, results[1].Final)
	assert.True(t, results[1].SpeechFinal)
	assert.Equal(t, "I need a new front door.", results[1].Text)
}

func TestClient_SkipsNonResultMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "Metadata"}`)))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{
			"type": "Results", "is_final": true, "speech_final": true,
			"channel": {"alternatives": [{"transcript": "hello"}]}
		}`)))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	client, err := Dial(context.Background(), Config{APIKey: "k", Model: "nova-2-phonecall", Language: "en-US", SampleRate: 8000, URL: wsURL(server)})
	require.NoError(t, err)
	defer client.Close()

	var results []Result
	for result := range client.Results() {
		results = append(results, result)
	}

	require.Len(t, results, 1)
	assert.Equal(t, "hello", results[0].Text)
}
