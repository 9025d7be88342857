// Package flow is the conversation state machine. A conversation is a
// sequence of nodes; each node gives the language model instructions and a
// set of callable functions, and every function call can move the
// conversation to the next node. Transitions are decided at runtime by the
// handlers, so the path through the flow is dynamic.
package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/worldofdoors/doorbot/internal/ctxlog"
)

// ErrNotInitialized reports a dispatch before Initialize.
var ErrNotInitialized = fmt.Errorf("flow: manager not initialized")

// Manager drives one conversation. It tracks the active node, dispatches
// the model's tool calls to handlers, and notifies the pipeline when the
// node (and therefore the model's instructions and tools) changes.
type Manager struct {
	mu      sync.Mutex
	current *Node
	store   *Store

	// onTransition is invoked with every newly activated node, including
	// the initial one. The LLM stage uses it to swap instructions/tools.
	onTransition func(*Node)
}

// NewManager creates a manager with an empty store.
func NewManager() *Manager {
	return &Manager{store: NewStore()}
}

// OnTransition registers the node-activation callback. Must be called
// before Initialize.
func (m *Manager) OnTransition(fn func(*Node)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// Store returns the per-session scratchpad shared by the handlers.
func (m *Manager) Store() *Store {
	return m.store
}

// Initialize activates the initial node.
func (m *Manager) Initialize(ctx context.Context, initial *Node) {
	ctxlog.FromContext(ctx).Info("Initializing conversation flow", "node", initial.Name)
	m.activate(initial)
}

// CurrentNode returns the active node, or nil before Initialize.
func (m *Manager) CurrentNode() *Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Dispatch routes one tool call to its handler on the active node. When
// the handler returns a next node, the manager transitions to it.
func (m *Manager) Dispatch(ctx context.Context, name string, args Args) (Result, error) {
	logger := ctxlog.FromContext(ctx)

	m.mu.Lock()
	node := m.current
	m.mu.Unlock()

	if node == nil {
		return nil, ErrNotInitialized
	}

	fn, ok := node.Function(name)
	if !ok {
		return nil, fmt.Errorf("flow: node %q has no function %q", node.Name, name)
	}

	for _, required := range fn.Required {
		if _, ok := args[required]; !ok {
			return nil, fmt.Errorf("flow: function %q missing required argument %q", name, required)
		}
	}

	logger.Info("🎯 Flow handler dispatched", "node", node.Name, "function", name)

	result, next, err := fn.Handler(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("flow: handler %q: %w", name, err)
	}

	if next != nil {
		logger.Info("Flow transition", "from", node.Name, "to", next.Name)
		m.activate(next)
	}

	return result, nil
}

// End clears the session scratchpad. The pipeline calls it once the call
// is over.
func (m *Manager) End(ctx context.Context) {
	ctxlog.FromContext(ctx).Info("Conversation flow ended, clearing context")
	m.store.Clear()
}

func (m *Manager) activate(node *Node) {
	m.mu.Lock()
	m.current = node
	notify := m.onTransition
	m.mu.Unlock()

	if notify != nil {
		notify(node)
	}
}
