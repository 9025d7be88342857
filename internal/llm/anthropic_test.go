package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropic_Complete_TextResponse(t *testing.T) {
	var captured anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "Hi! This is Jordan at World of Doors."}],
			"stop_reason": "end_turn"
		}`))
	}))
	defer server.Close()

	service := newAnthropic("test-key", "claude-haiku-4-5-20251001")
	service.baseURL = server.URL

	resp, err := service.Complete(context.Background(), Request{
		System:   "You are Jordan.",
		Messages: []Turn{{Role: RoleUser, Content: "Hello?"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "Hi! This is Jordan at World of Doors.", resp.Text)
	assert.Empty(t, resp.ToolCalls)

	assert.Equal(t, "claude-haiku-4-5-20251001", captured.Model)
	assert.Equal(t, "You are Jordan.", captured.System)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestAnthropic_Complete_ToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "Let me check that for you."},
				{"type": "tool_use", "id": "toolu_1", "name": "check_availability", "input": {"date": "2026-09-01"}}
			],
			"stop_reason": "tool_use"
		}`))
	}))
	defer server.Close()

	service := newAnthropic("test-key", "claude-haiku-4-5-20251001")
	service.baseURL = server.URL

	resp, err := service.Complete(context.Background(), Request{
		Messages: []Turn{{Role: RoleUser, Content: "Anything Tuesday?"}},
		Tools:    []Tool{{Name: "check_availability", Description: "Check open slots."}},
	})

	require.NoError(t, err)
	assert.Equal(t, "Let me check that for you.", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "check_availability", resp.ToolCalls[0].Name)
	assert.Equal(t, "2026-09-01", resp.ToolCalls[0].Arguments["date"])
}

func TestAnthropic_Complete_ToolTurnsOnTheWire(t *testing.T) {
	var captured anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "Booked!"}], "stop_reason": "end_turn"}`))
	}))
	defer server.Close()

	service := newAnthropic("test-key", "claude-haiku-4-5-20251001")
	service.baseURL = server.URL

	_, err := service.Complete(context.Background(), Request{
		Messages: []Turn{
			{Role: RoleUser, Content: "Book it."},
			{Role: RoleAssistant, ToolCall: &ToolCall{ID: "toolu_1", Name: "schedule", Arguments: map[string]any{"date": "2026-09-01"}}},
			{Role: RoleUser, ToolResult: &ToolResult{CallID: "toolu_1", Content: `{"status":"success"}`}},
		},
	})

	require.NoError(t, err)
	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "tool_use", captured.Messages[1].Content[0].Type)
	assert.Equal(t, "toolu_1", captured.Messages[1].Content[0].ID)
	assert.Equal(t, "tool_result", captured.Messages[2].Content[0].Type)
	assert.Equal(t, "toolu_1", captured.Messages[2].Content[0].ToolUseID)
}

func TestAnthropic_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"type": "authentication_error", "message": "invalid x-api-key"}}`))
	}))
	defer server.Close()

	service := newAnthropic("bad-key", "claude-haiku-4-5-20251001")
	service.baseURL = server.URL

	_, err := service.Complete(context.Background(), Request{
		Messages: []Turn{{Role: RoleUser, Content: "Hello?"}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication_error")
}

func TestOpenAI_Complete_ToolCallArguments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {
				"role": "assistant",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "schedule", "arguments": "{\"date\": \"2026-09-01\"}"}}]
			}}]
		}`))
	}))
	defer server.Close()

	service := newOpenAI("test-key", "gpt-4")
	service.baseURL = server.URL

	resp, err := service.Complete(context.Background(), Request{
		System:   "You are Jordan.",
		Messages: []Turn{{Role: RoleUser, Content: "Book Tuesday."}},
	})

	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "schedule", resp.ToolCalls[0].Name)
	assert.Equal(t, "2026-09-01", resp.ToolCalls[0].Arguments["date"])
}
