package flow

import "context"

// Message is one chat message handed to the language model.
type Message struct {
	Role    string
	Content string
}

// Property describes a single function argument in JSON-schema terms.
type Property struct {
	Type        string
	Description string
	Enum        []string
}

// Args holds the decoded arguments of one tool call.
type Args map[string]any

// String returns the named argument as a string, or "" when absent.
func (a Args) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Result is the payload a handler returns for the model to read back.
type Result map[string]any

// HandlerFunc processes one tool call. It returns the result for the model
// and, when the conversation should move on, the next node. A nil node
// keeps the conversation where it is.
type HandlerFunc func(ctx context.Context, args Args) (Result, *Node, error)

// FunctionSchema declares one function the model may call while a node is
// active.
type FunctionSchema struct {
	Name        string
	Description string
	Properties  map[string]Property
	Required    []string
	Handler     HandlerFunc
}

// ActionType names a side effect attached to a node.
type ActionType string

// ActionEndConversation ends the call after the node's response is spoken.
const ActionEndConversation ActionType = "end_conversation"

// Action is a side effect the pipeline executes when the node's response
// completes.
type Action struct {
	Type ActionType
}

// Node is one state of the conversation: the instructions the model gets
// and the functions it may call.
type Node struct {
	Name string

	// RoleMessages set the persona. Usually only the initial node carries
	// them; they persist across transitions.
	RoleMessages []Message

	// TaskMessages tell the model what to accomplish in this state. They
	// are swapped out on every transition.
	TaskMessages []Message

	Functions []FunctionSchema

	// RespondImmediately makes the bot speak on activation instead of
	// waiting for the user (the greeting node greets first).
	RespondImmediately bool

	PostActions []Action
}

// Function returns the schema with the given name, if the node offers it.
func (n *Node) Function(name string) (FunctionSchema, bool) {
	for _, fn := range n.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return FunctionSchema{}, false
}

// EndsConversation reports whether the node carries the end post-action.
func (n *Node) EndsConversation() bool {
	for _, action := range n.PostActions {
		if action.Type == ActionEndConversation {
			return true
		}
	}
	return false
}
