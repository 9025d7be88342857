// Package llm talks to the language model. It defines a provider-neutral
// completion interface, clients for the Anthropic and OpenAI APIs, and the
// conversation pipeline stage that drives the flow from model tool calls.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/worldofdoors/doorbot/internal/config"
)

// Role is a chat turn role.
type Role string

// Chat roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult carries a handler's result back to the model.
type ToolResult struct {
	CallID  string
	Content string
}

// Turn is one entry of the conversation history. Exactly one of Content,
// ToolCall, or ToolResult is set.
type Turn struct {
	Role       Role
	Content    string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// Tool declares a function the model may call. Schema is a JSON-schema
// object describing the arguments.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Request is one completion request.
type Request struct {
	System    string
	Messages  []Turn
	Tools     []Tool
	MaxTokens int
}

// Response is the model's reply: spoken text, tool calls, or both.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Service is a language model provider.
type Service interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// NewService builds the configured provider. A missing API key is a
// startup error, not something to discover mid-call.
func NewService(cfg config.LLM) (Service, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm: OPENAI_API_KEY not set")
		}
		return newOpenAI(cfg.APIKey, cfg.Model), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm: ANTHROPIC_API_KEY not set")
		}
		return newAnthropic(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}

// newHTTPClient returns the shared client shape for provider APIs. The
// timeout bounds a single completion; a caller hears silence past it.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
