package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// openAIService calls the OpenAI chat completions API.
type openAIService struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func newOpenAI(apiKey, model string) *openAIService {
	return &openAIService{
		apiKey:     apiKey,
		model:      model,
		baseURL:    "https://api.openai.com",
		httpClient: newHTTPClient(),
	}
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type openAIRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Messages  []openAIMessage `json:"messages"`
	Tools     []openAITool    `json:"tools,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements Service.
func (s *openAIService) Complete(ctx context.Context, req Request) (*Response, error) {
	payload := openAIRequest{
		Model:     s.model,
		MaxTokens: req.MaxTokens,
		Messages:  make([]openAIMessage, 0, len(req.Messages)+1),
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, openAIMessage{Role: "system", Content: req.System})
	}
	for _, turn := range req.Messages {
		msg, err := openAITurn(turn)
		if err != nil {
			return nil, err
		}
		payload.Messages = append(payload.Messages, msg)
	}
	for _, tool := range req.Tools {
		schema := tool.Schema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		var wire openAITool
		wire.Type = "function"
		wire.Function.Name = tool.Name
		wire.Function.Description = tool.Description
		wire.Function.Parameters = schema
		payload.Tools = append(payload.Tools, wire)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling openai: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var decoded openAIResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decoding response (status %d): %w", httpResp.StatusCode, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		if decoded.Error != nil {
			return nil, fmt.Errorf("openai API %s: %s", decoded.Error.Type, decoded.Error.Message)
		}
		return nil, fmt.Errorf("openai API returned status %d", httpResp.StatusCode)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("openai API returned no choices")
	}

	message := decoded.Choices[0].Message
	resp := &Response{Text: message.Content}
	for _, call := range message.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("decoding tool call arguments for %s: %w", call.Function.Name, err)
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return resp, nil
}

// openAITurn converts one history turn to the wire format. Tool calls ride
// on assistant messages; results use the dedicated tool role.
func openAITurn(turn Turn) (openAIMessage, error) {
	switch {
	case turn.ToolCall != nil:
		args, err := json.Marshal(turn.ToolCall.Arguments)
		if err != nil {
			return openAIMessage{}, fmt.Errorf("marshaling tool call arguments: %w", err)
		}
		return openAIMessage{
			Role: "assistant",
			ToolCalls: []openAIToolCall{{
				ID:   turn.ToolCall.ID,
				Type: "function",
				Function: openAIFunctionCall{
					Name:      turn.ToolCall.Name,
					Arguments: string(args),
				},
			}},
		}, nil
	case turn.ToolResult != nil:
		return openAIMessage{
			Role:       "tool",
			Content:    turn.ToolResult.Content,
			ToolCallID: turn.ToolResult.CallID,
		}, nil
	default:
		return openAIMessage{Role: string(turn.Role), Content: turn.Content}, nil
	}
}
