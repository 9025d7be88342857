package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Server holds the HTTP service settings.
type Server struct {
	Port        int    `hcl:"port,optional"`
	Environment string `hcl:"environment,optional"`
}

// Daily holds the Daily.co room provisioning settings. An empty APIKey
// switches the room service into mock mode for local development.
type Daily struct {
	APIKey  string `hcl:"api_key,optional"`
	APIURL  string `hcl:"api_url,optional"`
	RoomTTL string `hcl:"room_ttl,optional"`
}

// Backend holds the scheduling backend settings. GatewayURL is the
// optional socket.io gateway for appointment change events.
type Backend struct {
	BaseURL    string `hcl:"base_url,optional"`
	GatewayURL string `hcl:"gateway_url,optional"`
}

// LLM selects and configures the language model provider.
type LLM struct {
	Provider string `hcl:"provider,optional"`
	Model    string `hcl:"model,optional"`
	APIKey   string `hcl:"api_key,optional"`
}

// STT configures the Deepgram live transcription service.
type STT struct {
	APIKey   string `hcl:"api_key,optional"`
	Model    string `hcl:"model,optional"`
	Language string `hcl:"language,optional"`
}

// TTS configures the ElevenLabs speech synthesis service.
type TTS struct {
	APIKey  string `hcl:"api_key,optional"`
	VoiceID string `hcl:"voice_id,optional"`
}

// Bot holds the conversational business rules.
type Bot struct {
	DisplayName      string  `hcl:"display_name,optional"`
	OpenHour         int     `hcl:"open_hour,optional"`
	CloseHour        int     `hcl:"close_hour,optional"`
	SlotHours        int     `hcl:"slot_hours,optional"`
	CancellationFee  float64 `hcl:"cancellation_fee,optional"`
	LateNoticePolicy bool    `hcl:"late_notice_policy,optional"`
}

// Config is the fully resolved service configuration.
type Config struct {
	Server  Server
	Daily   Daily
	Backend Backend
	LLM     LLM
	STT     STT
	TTS     TTS
	Bot     Bot

	// MediaGatewayURL is the websocket endpoint the transport bridges
	// call audio through. Empty disables the media pipeline (webhook-only
	// mode, used in tests).
	MediaGatewayURL string
}

// Default returns the built-in configuration with environment variable
// overrides applied. The variable names match what the deployment already
// exports (PORT, NESTJS_API_URL, DAILY_API_KEY, ...).
func Default() *Config {
	cfg := &Config{
		Server: Server{
			Port:        8000,
			Environment: envOr("ENVIRONMENT", "development"),
		},
		Daily: Daily{
			APIKey:  os.Getenv("DAILY_API_KEY"),
			APIURL:  "https://api.daily.co/v1",
			RoomTTL: "1h",
		},
		Backend: Backend{
			BaseURL:    envOr("NESTJS_API_URL", "http://localhost:3000"),
			GatewayURL: os.Getenv("NESTJS_GATEWAY_URL"),
		},
		LLM: LLM{
			Provider: envOr("LLM_PROVIDER", "anthropic"),
		},
		STT: STT{
			APIKey:   os.Getenv("DEEPGRAM_API_KEY"),
			Model:    "nova-2-phonecall",
			Language: "en-US",
		},
		TTS: TTS{
			APIKey:  os.Getenv("ELEVENLABS_API_KEY"),
			VoiceID: envOr("ELEVENLABS_VOICE_ID", "s3TPKV1kjDlVtZbl4Ksh"),
		},
		Bot: Bot{
			DisplayName:      "World of Doors Assistant",
			OpenHour:         9,
			CloseHour:        18,
			SlotHours:        2,
			CancellationFee:  75,
			LateNoticePolicy: true,
		},
		MediaGatewayURL: os.Getenv("MEDIA_GATEWAY_URL"),
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Server.Port = port
		}
	}

	switch cfg.LLM.Provider {
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		cfg.LLM.Model = envOr("OPENAI_MODEL", "gpt-4")
	default:
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		cfg.LLM.Model = envOr("ANTHROPIC_MODEL", "claude-haiku-4-5-20251001")
	}

	return cfg
}

// Validate checks the parts of the configuration that cannot be defaulted
// away. It is called once at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.LLM.Provider {
	case "anthropic", "openai":
		// supported
	default:
		return fmt.Errorf("unsupported LLM provider: %q (use 'anthropic' or 'openai')", c.LLM.Provider)
	}

	if _, err := c.RoomTTL(); err != nil {
		return fmt.Errorf("invalid daily room_ttl: %w", err)
	}

	if c.Bot.OpenHour < 0 || c.Bot.CloseHour > 24 || c.Bot.OpenHour >= c.Bot.CloseHour {
		return fmt.Errorf("invalid business hours: open %d, close %d", c.Bot.OpenHour, c.Bot.CloseHour)
	}

	return nil
}

// RoomTTL parses the configured Daily room lifetime.
func (c *Config) RoomTTL() (time.Duration, error) {
	if c.Daily.RoomTTL == "" {
		return time.Hour, nil
	}
	return time.ParseDuration(c.Daily.RoomTTL)
}

// SlotDuration returns the appointment slot length.
func (c *Config) SlotDuration() time.Duration {
	hours := c.Bot.SlotHours
	if hours <= 0 {
		hours = 2
	}
	return time.Duration(hours) * time.Hour
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
