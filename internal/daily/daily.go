// Package daily provisions Daily.co rooms with SIP dial-in so Twilio can
// bridge phone callers into a WebRTC room. Without an API key the service
// hands out deterministic mock rooms, which keeps local development and
// tests off the network.
package daily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/worldofdoors/doorbot/internal/ctxlog"
)

// DefaultAPIURL is the Daily REST endpoint.
const DefaultAPIURL = "https://api.daily.co/v1"

// Room describes a provisioned room.
type Room struct {
	Name        string
	URL         string
	SIPEndpoint string
}

// SIPConfig is what the inbound-call webhook needs to bridge a caller:
// the room, a meeting token for the bot, and the SIP endpoint for Twilio.
type SIPConfig struct {
	RoomURL     string
	RoomName    string
	Token       string
	SIPEndpoint string
}

// Service manages Daily rooms. An empty API key selects mock mode.
type Service struct {
	apiKey      string
	apiURL      string
	roomTTL     time.Duration
	displayName string
	httpClient  *http.Client
}

// Options tune a Service beyond its defaults.
type Options struct {
	APIURL      string
	RoomTTL     time.Duration
	DisplayName string
}

// New creates a room service.
func New(apiKey string, opts Options) *Service {
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	roomTTL := opts.RoomTTL
	if roomTTL <= 0 {
		roomTTL = time.Hour
	}
	displayName := opts.DisplayName
	if displayName == "" {
		displayName = "World of Doors Bot"
	}

	return &Service{
		apiKey:      apiKey,
		apiURL:      strings.TrimRight(apiURL, "/"),
		roomTTL:     roomTTL,
		displayName: displayName,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Mock reports whether the service is running without a real API key.
func (s *Service) Mock() bool {
	return s.apiKey == ""
}

// roomResponse is the wire shape of Daily's room objects.
type roomResponse struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	SIPURI string `json:"sip_uri"`
}

// tokenResponse is the wire shape of Daily's meeting token endpoint.
type tokenResponse struct {
	Token string `json:"token"`
}

// CreateRoom creates a room with SIP dial-in enabled.
func (s *Service) CreateRoom(ctx context.Context, name string) (*Room, error) {
	logger := ctxlog.FromContext(ctx)

	if s.Mock() {
		logger.Warn("Daily API key not configured, using mock room", "room", name)
		return s.mockRoom(name), nil
	}

	payload := map[string]any{
		"name": name,
		"properties": map[string]any{
			"exp":              time.Now().Add(s.roomTTL).Unix(),
			"enable_recording": "cloud",
			"start_audio_off":  false,
			"start_video_off":  true,
			"sip": map[string]any{
				"display_name":  s.displayName,
				"video":         false,
				"sip_mode":      "dial-in",
				"num_endpoints": 1,
			},
		},
	}

	var room roomResponse
	if err := s.post(ctx, "/rooms", payload, &room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	sipEndpoint := room.SIPURI
	if sipEndpoint == "" {
		// SIP may not be enabled for the account. Fall back to the
		// conventional URI so the call at least has somewhere to go.
		sipEndpoint = fmt.Sprintf("sip:%s@sip.daily.co", room.Name)
		logger.Warn("No sip_uri in room response, using fallback SIP URI", "room", room.Name, "sip", sipEndpoint)
	} else {
		logger.Info("✓ SIP endpoint from Daily", "room", room.Name, "sip", sipEndpoint)
	}

	return &Room{Name: room.Name, URL: room.URL, SIPEndpoint: sipEndpoint}, nil
}

// DeleteRoom removes a room. Mock mode always succeeds.
func (s *Service) DeleteRoom(ctx context.Context, name string) error {
	logger := ctxlog.FromContext(ctx)

	if s.Mock() {
		logger.Info("Mock: would delete room", "room", name)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.apiURL+"/rooms/"+name, nil)
	if err != nil {
		return err
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete room %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to delete room %s: status %d", name, resp.StatusCode)
	}

	logger.Info("Deleted Daily room", "room", name)
	return nil
}

// GetRoom fetches room details.
func (s *Service) GetRoom(ctx context.Context, name string) (*Room, error) {
	if s.Mock() {
		return s.mockRoom(name), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+"/rooms/"+name, nil)
	if err != nil {
		return nil, err
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get room %s: status %d", name, resp.StatusCode)
	}

	var room roomResponse
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return nil, fmt.Errorf("failed to decode room response: %w", err)
	}
	return &Room{Name: room.Name, URL: room.URL, SIPEndpoint: room.SIPURI}, nil
}

// ConfigureSIP provisions everything the webhook needs for one inbound
// call: a fresh SIP room and a meeting token for the bot participant.
func (s *Service) ConfigureSIP(ctx context.Context, roomName string) (*SIPConfig, error) {
	room, err := s.CreateRoom(ctx, roomName)
	if err != nil {
		return nil, err
	}

	token, err := s.meetingToken(ctx, room.Name)
	if err != nil {
		return nil, err
	}

	return &SIPConfig{
		RoomURL:     room.URL,
		RoomName:    room.Name,
		Token:       token,
		SIPEndpoint: room.SIPEndpoint,
	}, nil
}

// meetingToken mints an owner token scoped to one room.
func (s *Service) meetingToken(ctx context.Context, roomName string) (string, error) {
	if s.Mock() {
		return "mock-token-" + roomName, nil
	}

	payload := map[string]any{
		"properties": map[string]any{
			"room_name": roomName,
			"is_owner":  true,
			"exp":       time.Now().Add(s.roomTTL).Unix(),
		},
	}

	var token tokenResponse
	if err := s.post(ctx, "/meeting-tokens", payload, &token); err != nil {
		return "", fmt.Errorf("failed to create meeting token: %w", err)
	}
	return token.Token, nil
}

// post sends an authorized JSON POST and decodes the response.
func (s *Service) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: status %d: %s", endpoint, resp.StatusCode, string(errText))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *Service) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
}

func (s *Service) mockRoom(name string) *Room {
	return &Room{
		Name:        name,
		URL:         "https://mock.daily.co/" + name,
		SIPEndpoint: fmt.Sprintf("sip:mock-%s@sip.daily.co", name),
	}
}
