package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/worldofdoors/doorbot/internal/ctxlog"
	"github.com/worldofdoors/doorbot/internal/flow"
	"github.com/worldofdoors/doorbot/internal/pipeline"
)

// maxToolRounds bounds how many completion/tool-call cycles one caller
// utterance may trigger before the turn is cut short.
const maxToolRounds = 8

// maxHistoryTurns bounds the conversation history sent to the model. A
// phone call rarely gets near this, but a runaway loop must not grow the
// prompt unbounded.
const maxHistoryTurns = 80

// Conversation is the pipeline stage between transcription and synthesis.
// It keeps the conversation history, prompts the model with the active
// flow node's instructions and tools, dispatches tool calls through the
// flow manager, and emits the model's reply as speakable text.
type Conversation struct {
	service   Service
	manager   *flow.Manager
	interrupt *pipeline.Interrupt

	mu        sync.Mutex
	system    []string
	task      []string
	tools     []Tool
	history   []Turn
	endsAfter bool

	onStart func(ctx context.Context) error
	endCall func()
}

// NewConversation builds the stage and hooks it to the manager's node
// transitions.
func NewConversation(service Service, manager *flow.Manager, interrupt *pipeline.Interrupt) *Conversation {
	c := &Conversation{
		service:   service,
		manager:   manager,
		interrupt: interrupt,
	}
	manager.OnTransition(c.applyNode)
	return c
}

// OnStart registers the session hook invoked when the caller joins,
// before the first model turn. The session uses it to initialize the flow.
func (c *Conversation) OnStart(fn func(ctx context.Context) error) {
	c.onStart = fn
}

// OnEndCall registers the hook that ends the call after a terminal node's
// response has been spoken.
func (c *Conversation) OnEndCall(fn func()) {
	c.endCall = fn
}

// Name implements pipeline.Processor.
func (c *Conversation) Name() string { return "conversation" }

// Process implements pipeline.Processor.
func (c *Conversation) Process(ctx context.Context, frame pipeline.Frame, out chan<- pipeline.Frame) error {
	switch f := frame.(type) {
	case pipeline.StartFrame:
		if c.onStart != nil {
			if err := c.onStart(ctx); err != nil {
				return fmt.Errorf("starting conversation: %w", err)
			}
		}
		if node := c.manager.CurrentNode(); node != nil && node.RespondImmediately {
			return c.respond(ctx, out)
		}
		return pipeline.Forward(ctx, out, frame)

	case pipeline.TranscriptionFrame:
		if !f.Final {
			return nil
		}
		text := strings.TrimSpace(f.Text)
		if text == "" {
			return nil
		}
		c.appendTurn(Turn{Role: RoleUser, Content: text})
		return c.respond(ctx, out)

	case pipeline.EndFrame:
		c.manager.End(ctx)
		return pipeline.Forward(ctx, out, frame)

	default:
		return pipeline.Forward(ctx, out, frame)
	}
}

// respond runs completion rounds until the model answers without calling
// a tool, then triggers hang-up if the conversation reached a terminal
// node during dispatch.
func (c *Conversation) respond(ctx context.Context, out chan<- pipeline.Frame) error {
	logger := ctxlog.FromContext(ctx)
	epoch := c.interrupt.Epoch()

	for round := 0; round < maxToolRounds; round++ {
		resp, err := c.service.Complete(ctx, c.buildRequest())
		if err != nil {
			return fmt.Errorf("completing turn: %w", err)
		}

		if resp.Text != "" {
			c.appendTurn(Turn{Role: RoleAssistant, Content: resp.Text})
			if speech := SanitizeForSpeech(resp.Text); speech != "" {
				if err := pipeline.Forward(ctx, out, pipeline.TextFrame{Text: speech, Epoch: epoch}); err != nil {
					return err
				}
			}
		}

		if len(resp.ToolCalls) == 0 {
			break
		}

		for _, call := range resp.ToolCalls {
			c.appendTurn(Turn{Role: RoleAssistant, ToolCall: cloneCall(call)})

			result, err := c.manager.Dispatch(ctx, call.Name, flow.Args(call.Arguments))
			if err != nil {
				logger.Error("Tool call failed", "function", call.Name, "error", err)
				result = flow.Result{"status": "error", "error": err.Error()}
			}
			c.appendTurn(Turn{Role: RoleUser, ToolResult: &ToolResult{
				CallID:  call.ID,
				Content: encodeResult(result),
			}})
		}
		// Loop so the model reads the results under the (possibly new)
		// node's instructions.
	}

	if c.terminal() && c.endCall != nil {
		logger.Info("Terminal node response spoken, ending call")
		c.endCall()
	}
	return nil
}

// applyNode swaps the model's instructions and tools when the flow moves.
// Role messages persist for the whole call; task messages are replaced.
func (c *Conversation) applyNode(node *flow.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, msg := range node.RoleMessages {
		c.system = append(c.system, msg.Content)
	}
	c.task = c.task[:0]
	for _, msg := range node.TaskMessages {
		c.task = append(c.task, msg.Content)
	}
	c.tools = toolsFor(node)
	c.endsAfter = node.EndsConversation()
}

func (c *Conversation) buildRequest() Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	parts := make([]string, 0, len(c.system)+len(c.task))
	parts = append(parts, c.system...)
	parts = append(parts, c.task...)

	return Request{
		System:   strings.Join(parts, "\n\n"),
		Messages: append([]Turn(nil), c.history...),
		Tools:    append([]Tool(nil), c.tools...),
	}
}

func (c *Conversation) appendTurn(turn Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, turn)
	if len(c.history) > maxHistoryTurns {
		c.history = c.history[len(c.history)-maxHistoryTurns:]
	}
}

func (c *Conversation) terminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endsAfter
}

// toolsFor converts a node's function schemas to the wire tool format.
func toolsFor(node *flow.Node) []Tool {
	tools := make([]Tool, 0, len(node.Functions))
	for _, fn := range node.Functions {
		properties := map[string]any{}
		for name, prop := range fn.Properties {
			spec := map[string]any{"type": prop.Type}
			if prop.Description != "" {
				spec["description"] = prop.Description
			}
			if len(prop.Enum) > 0 {
				spec["enum"] = prop.Enum
			}
			properties[name] = spec
		}
		schema := map[string]any{"type": "object", "properties": properties}
		if len(fn.Required) > 0 {
			schema["required"] = fn.Required
		}
		tools = append(tools, Tool{
			Name:        fn.Name,
			Description: fn.Description,
			Schema:      schema,
		})
	}
	return tools
}

func cloneCall(call ToolCall) *ToolCall {
	cloned := call
	if cloned.Arguments == nil {
		cloned.Arguments = map[string]any{}
	}
	return &cloned
}

func encodeResult(result flow.Result) string {
	if result == nil {
		result = flow.Result{}
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"status":"error","error":%q}`, err.Error())
	}
	return string(encoded)
}
