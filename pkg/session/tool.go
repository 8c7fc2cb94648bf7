package session

import (
	"context"
	"fmt"
	"sync"
)

// Tool is a local capability the session can run mid-conversation, such as
// looking something up or driving an app-side action. The result goes back
// to the backend as a text frame so the model can continue from it.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// Handler is called when the tool is dispatched.
	Handler func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// ToolCall is one invocation request.
type ToolCall struct {
	// ID matches results back to the call.
	ID string

	// Name is the tool being invoked.
	Name string

	// Arguments are the parsed call arguments.
	Arguments map[string]any
}

// Dispatcher resolves tool calls. The session suspends audio forwarding
// while a dispatch is outstanding.
type Dispatcher interface {
	Dispatch(ctx context.Context, call ToolCall) (string, error)
}

// Registry is a func-backed Dispatcher over named tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Tools returns the registered tools.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Dispatch runs the named tool.
func (r *Registry) Dispatch(ctx context.Context, call ToolCall) (string, error) {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("session: unknown tool %q", call.Name)
	}
	return tool.Handler(ctx, call.Arguments)
}

var _ Dispatcher = (*Registry)(nil)
