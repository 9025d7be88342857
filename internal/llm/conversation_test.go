package llm

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worldofdoors/doorbot/internal/flow"
	"github.com/worldofdoors/doorbot/internal/pipeline"
)

// scriptedService replays canned responses and records every request.
type scriptedService struct {
	mu        sync.Mutex
	requests  []Request
	responses []*Response
}

func (s *scriptedService) Complete(_ context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("scripted service exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedService) recorded() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func drainText(out chan pipeline.Frame) []string {
	var texts []string
	for {
		select {
		case frame := <-out:
			if text, ok := frame.(pipeline.TextFrame); ok {
				texts = append(texts, text.Text)
			}
		default:
			return texts
		}
	}
}

func TestProcess_StartFrameGreetsImmediately(t *testing.T) {
	service := &scriptedService{responses: []*Response{
		{Text: "Hi! This is Jordan at World of Doors."},
	}}
	manager := flow.NewManager()
	conv := NewConversation(service, manager, pipeline.NewInterrupt())

	greeting := &flow.Node{
		Name:               "start",
		RoleMessages:       []flow.Message{{Role: "system", Content: "You are Jordan."}},
		TaskMessages:       []flow.Message{{Role: "system", Content: "Greet the caller."}},
		RespondImmediately: true,
	}
	conv.OnStart(func(ctx context.Context) error {
		manager.Initialize(ctx, greeting)
		return nil
	})

	out := make(chan pipeline.Frame, 8)
	err := conv.Process(context.Background(), pipeline.StartFrame{}, out)

	require.NoError(t, err)
	assert.Equal(t, []string{"Hi! This is Jordan at World of Doors."}, drainText(out))

	requests := service.recorded()
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].System, "You are Jordan.")
	assert.Contains(t, requests[0].System, "Greet the caller.")
}

func TestProcess_ToolCallTransitionsAndEndsCall(t *testing.T) {
	goodbye := &flow.Node{
		Name:         "end",
		TaskMessages: []flow.Message{{Role: "system", Content: "Say goodbye."}},
		PostActions:  []flow.Action{{Type: flow.ActionEndConversation}},
	}
	start := &flow.Node{
		Name:         "start",
		TaskMessages: []flow.Message{{Role: "system", Content: "Ask what they need."}},
		Functions: []flow.FunctionSchema{{
			Name: "wrap_up",
			Handler: func(context.Context, flow.Args) (flow.Result, *flow.Node, error) {
				return flow.Result{"status": "success"}, goodbye, nil
			},
		}},
	}

	service := &scriptedService{responses: []*Response{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "wrap_up"}}},
		{Text: "Thanks for calling, goodbye!"},
	}}
	manager := flow.NewManager()
	conv := NewConversation(service, manager, pipeline.NewInterrupt())

	ended := false
	conv.OnEndCall(func() { ended = true })
	manager.Initialize(context.Background(), start)

	out := make(chan pipeline.Frame, 8)
	err := conv.Process(context.Background(), pipeline.TranscriptionFrame{Text: "that's all", Final: true}, out)

	require.NoError(t, err)
	assert.True(t, ended, "terminal node should end the call after its response")
	assert.Equal(t, []string{"Thanks for calling, goodbye!"}, drainText(out))

	requests := service.recorded()
	require.Len(t, requests, 2)
	// Second round runs under the new node's instructions and carries the
	// tool result in the history.
	assert.Contains(t, requests[1].System, "Say goodbye.")
	last := requests[1].Messages[len(requests[1].Messages)-1]
	require.NotNil(t, last.ToolResult)
	assert.Equal(t, "call_1", last.ToolResult.CallID)
	assert.Contains(t, last.ToolResult.Content, "success")
}

func TestProcess_HandlerErrorIsReportedToModel(t *testing.T) {
	start := &flow.Node{
		Name: "start",
		Functions: []flow.FunctionSchema{{
			Name: "lookup",
			Handler: func(context.Context, flow.Args) (flow.Result, *flow.Node, error) {
				return nil, nil, fmt.Errorf("backend unreachable")
			},
		}},
	}

	service := &scriptedService{responses: []*Response{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "lookup"}}},
		{Text: "Sorry, I'm having trouble with that right now."},
	}}
	manager := flow.NewManager()
	conv := NewConversation(service, manager, pipeline.NewInterrupt())
	manager.Initialize(context.Background(), start)

	out := make(chan pipeline.Frame, 8)
	err := conv.Process(context.Background(), pipeline.TranscriptionFrame{Text: "look me up", Final: true}, out)

	require.NoError(t, err, "handler errors go back to the model, not up the pipeline")

	requests := service.recorded()
	require.Len(t, requests, 2)
	last := requests[1].Messages[len(requests[1].Messages)-1]
	require.NotNil(t, last.ToolResult)
	assert.Contains(t, last.ToolResult.Content, "backend unreachable")
}

func TestProcess_IgnoresInterimAndEmptyTranscriptions(t *testing.T) {
	service := &scriptedService{}
	manager := flow.NewManager()
	conv := NewConversation(service, manager, pipeline.NewInterrupt())
	manager.Initialize(context.Background(), &flow.Node{Name: "start"})

	out := make(chan pipeline.Frame, 8)
	require.NoError(t, conv.Process(context.Background(), pipeline.TranscriptionFrame{Text: "hel", Final: false}, out))
	require.NoError(t, conv.Process(context.Background(), pipeline.TranscriptionFrame{Text: "   ", Final: true}, out))

	assert.Empty(t, service.recorded(), "no model call without a final utterance")
}

func TestProcess_ForwardsUnrelatedFrames(t *testing.T) {
	service := &scriptedService{}
	manager := flow.NewManager()
	conv := NewConversation(service, manager, pipeline.NewInterrupt())

	out := make(chan pipeline.Frame, 1)
	audio := pipeline.AudioInputFrame{PCM: []byte{1, 2}, SampleRate: 16000}
	require.NoError(t, conv.Process(context.Background(), audio, out))

	assert.Equal(t, pipeline.Frame(audio), <-out)
}
