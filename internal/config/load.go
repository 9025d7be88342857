package config

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/worldofdoors/doorbot/internal/ctxlog"
)

// fileRoot decodes all top-level blocks of a configuration file. Every
// block and every attribute is optional; anything absent keeps its default.
type fileRoot struct {
	Server  *serverBlock  `hcl:"server,block"`
	Daily   *dailyBlock   `hcl:"daily,block"`
	Backend *backendBlock `hcl:"backend,block"`
	LLM     *llmBlock     `hcl:"llm,block"`
	STT     *sttBlock     `hcl:"stt,block"`
	TTS     *ttsBlock     `hcl:"tts,block"`
	Bot     *botBlock     `hcl:"bot,block"`
	Media   *mediaBlock   `hcl:"media,block"`
}

// The block structs use pointer fields so "attribute not written" is
// distinguishable from an explicit zero value.
type serverBlock struct {
	Port        *int    `hcl:"port,optional"`
	Environment *string `hcl:"environment,optional"`
}

type dailyBlock struct {
	APIKey  *string `hcl:"api_key,optional"`
	APIURL  *string `hcl:"api_url,optional"`
	RoomTTL *string `hcl:"room_ttl,optional"`
}

type backendBlock struct {
	BaseURL    *string `hcl:"base_url,optional"`
	GatewayURL *string `hcl:"gateway_url,optional"`
}

type llmBlock struct {
	Provider *string `hcl:"provider,optional"`
	Model    *string `hcl:"model,optional"`
	APIKey   *string `hcl:"api_key,optional"`
}

type sttBlock struct {
	APIKey   *string `hcl:"api_key,optional"`
	Model    *string `hcl:"model,optional"`
	Language *string `hcl:"language,optional"`
}

type ttsBlock struct {
	APIKey  *string `hcl:"api_key,optional"`
	VoiceID *string `hcl:"voice_id,optional"`
}

type botBlock struct {
	DisplayName      *string  `hcl:"display_name,optional"`
	OpenHour         *int     `hcl:"open_hour,optional"`
	CloseHour        *int     `hcl:"close_hour,optional"`
	SlotHours        *int     `hcl:"slot_hours,optional"`
	CancellationFee  *float64 `hcl:"cancellation_fee,optional"`
	LateNoticePolicy *bool    `hcl:"late_notice_policy,optional"`
}

type mediaBlock struct {
	GatewayURL *string `hcl:"gateway_url,optional"`
}

// Load reads an HCL configuration file and overlays it onto the defaults.
// Expressions may call env(name) or env(name, fallback) to pull secrets
// from the environment instead of committing them to the file.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading configuration file.", "path", path)

	cfg := Default()

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(file.Body, evalContext(), &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, diags)
	}

	cfg.apply(&root)
	logger.Debug("Configuration file applied.", "path", path)
	return cfg, nil
}

// evalContext builds the expression scope available to config files.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env": envFunc,
		},
	}
}

// envFunc implements env(name) / env(name, fallback) for config expressions.
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	VarParam: &function.Parameter{Name: "fallback", Type: cty.String},
	Type:     function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if v, ok := os.LookupEnv(args[0].AsString()); ok && v != "" {
			return cty.StringVal(v), nil
		}
		if len(args) > 1 {
			return args[1], nil
		}
		return cty.StringVal(""), nil
	},
})

// apply overlays every attribute that was present in the file.
func (c *Config) apply(root *fileRoot) {
	if b := root.Server; b != nil {
		overlay(&c.Server.Port, b.Port)
		overlay(&c.Server.Environment, b.Environment)
	}
	if b := root.Daily; b != nil {
		overlay(&c.Daily.APIKey, b.APIKey)
		overlay(&c.Daily.APIURL, b.APIURL)
		overlay(&c.Daily.RoomTTL, b.RoomTTL)
	}
	if b := root.Backend; b != nil {
		overlay(&c.Backend.BaseURL, b.BaseURL)
		overlay(&c.Backend.GatewayURL, b.GatewayURL)
	}
	if b := root.LLM; b != nil {
		overlay(&c.LLM.Provider, b.Provider)
		overlay(&c.LLM.Model, b.Model)
		overlay(&c.LLM.APIKey, b.APIKey)
	}
	if b := root.STT; b != nil {
		overlay(&c.STT.APIKey, b.APIKey)
		overlay(&c.STT.Model, b.Model)
		overlay(&c.STT.Language, b.Language)
	}
	if b := root.TTS; b != nil {
		overlay(&c.TTS.APIKey, b.APIKey)
		overlay(&c.TTS.VoiceID, b.VoiceID)
	}
	if b := root.Bot; b != nil {
		overlay(&c.Bot.DisplayName, b.DisplayName)
		overlay(&c.Bot.OpenHour, b.OpenHour)
		overlay(&c.Bot.CloseHour, b.CloseHour)
		overlay(&c.Bot.SlotHours, b.SlotHours)
		overlay(&c.Bot.CancellationFee, b.CancellationFee)
		overlay(&c.Bot.LateNoticePolicy, b.LateNoticePolicy)
	}
	if b := root.Media; b != nil {
		overlay(&c.MediaGatewayURL, b.GatewayURL)
	}
}

func overlay[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
