package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worldofdoors/doorbot/internal/appointment"
	"github.com/worldofdoors/doorbot/internal/backend"
	"github.com/worldofdoors/doorbot/internal/config"
	"github.com/worldofdoors/doorbot/internal/daily"
	"github.com/worldofdoors/doorbot/internal/session"
)

func newTestServer(t *testing.T, rooms *daily.Service) (*Server, *session.Registry) {
	t.Helper()

	cfg := &config.Config{
		Server:  config.Server{Port: 8000, Environment: "test"},
		Backend: config.Backend{BaseURL: "http://localhost:3000"},
		Bot:     config.Bot{OpenHour: 9, CloseHour: 18, SlotHours: 2},
	}
	api := backend.New("http://127.0.0.1:1")
	cache := appointment.NewAvailabilityCache(time.Minute)
	registry := session.NewRegistry()

	factory := func(params session.Params) *session.Session {
		return session.New(cfg, api, nil, cache, params)
	}
	return New(cfg, rooms, registry, factory), registry
}

func postCall(t *testing.T, ts *httptest.Server, form url.Values) *http.Response {
	t.Helper()
	resp, err := ts.Client().PostForm(ts.URL+"/inbound-call", form)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestInboundCall_MissingCallSid(t *testing.T) {
	srv, _ := newTestServer(t, daily.New("", daily.Options{}))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := postCall(t, ts, url.Values{"From": {"+15551234567"}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInboundCall_BridgesCallerIntoSIPRoom(t *testing.T) {
	srv, registry := newTestServer(t, daily.New("", daily.Options{}))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := postCall(t, ts, url.Values{"CallSid": {"CA1"}, "From": {"+15551234567"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/xml", resp.Header.Get("Content-Type"))

	body := readBody(t, resp)
	assert.Contains(t, body, `<Say voice="alice">Please hold...</Say>`)
	assert.Contains(t, body, "<Sip>sip:mock-wod-CA1@sip.daily.co</Sip>")

	// The session runs in the background until ended.
	require.Equal(t, 1, registry.Len())
	endResp, err := ts.Client().Post(ts.URL+"/end-call/CA1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "call ended", "call_sid": "CA1"}, decodeJSON(t, endResp))

	require.Eventually(t, func() bool { return registry.Len() == 0 },
		2*time.Second, 10*time.Millisecond, "ended session must leave the registry")
}

func TestInboundCall_DuplicateDeliveryGetsEmptyTwiML(t *testing.T) {
	srv, registry := newTestServer(t, daily.New("", daily.Options{}))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	cfg := &config.Config{Bot: config.Bot{OpenHour: 9, CloseHour: 18, SlotHours: 2}}
	existing := session.New(cfg, backend.New("http://127.0.0.1:1"), nil,
		appointment.NewAvailabilityCache(time.Minute), session.Params{CallSid: "CA2"})
	require.True(t, registry.Add(existing))

	resp := postCall(t, ts, url.Values{"CallSid": {"CA2"}, "From": {"+15551234567"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "<Response></Response>")
	assert.NotContains(t, body, "<Say")
	assert.Equal(t, 1, registry.Len(), "duplicate delivery must not spawn a session")
}

func TestInboundCall_RoomProvisioningFailure(t *testing.T) {
	dailyAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid-request"}`, http.StatusBadRequest)
	}))
	defer dailyAPI.Close()

	srv, registry := newTestServer(t, daily.New("real-key", daily.Options{APIURL: dailyAPI.URL}))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := postCall(t, ts, url.Values{"CallSid": {"CA3"}, "From": {"+15551234567"}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 0, registry.Len())
}

func TestRootAndHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, daily.New("", daily.Options{}))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/")
	require.NoError(t, err)
	root := decodeJSON(t, resp)
	assert.Equal(t, "healthy", root["status"])
	assert.Equal(t, "World of Doors Voice Bot", root["service"])
	assert.Equal(t, float64(0), root["active_sessions"])

	resp, err = ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	health := decodeJSON(t, resp)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "test", health["environment"])
	assert.Equal(t, false, health["daily_configured"])
	assert.Equal(t, "http://localhost:3000", health["nestjs_api"])
}

func TestEndCall_UnknownSid(t *testing.T) {
	srv, _ := newTestServer(t, daily.New("", daily.Options{}))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/end-call/CA404", "", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "call not found", "call_sid": "CA404"}, decodeJSON(t, resp))
}

func TestActiveCalls_ListsSessions(t *testing.T) {
	srv, registry := newTestServer(t, daily.New("", daily.Options{}))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	cfg := &config.Config{Bot: config.Bot{OpenHour: 9, CloseHour: 18, SlotHours: 2}}
	registry.Add(session.New(cfg, backend.New("http://127.0.0.1:1"), nil,
		appointment.NewAvailabilityCache(time.Minute), session.Params{CallSid: "CA10"}))

	resp, err := ts.Client().Get(ts.URL + "/active-calls")
	require.NoError(t, err)
	body := decodeJSON(t, resp)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, []any{"CA10"}, body["active_calls"])
}
