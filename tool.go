package tenun

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Tool is a capability an agent can invoke on request.
type Tool interface {
	Name() string
	Description() string

	// Execute runs the tool. Failures are reported through ToolResult, not
	// an error return, so a misbehaving tool can never abort a turn.
	Execute(ctx context.Context, input string, params map[string]any) ToolResult

	// ValidateInput checks input before execution. Advisory; Execute must
	// still handle bad input.
	ValidateInput(input string, params map[string]any) error
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Success  bool           `json:"success"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Err      string         `json:"error,omitempty"`
}

// ToolRegistry holds the tools available to one agent.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool under its own name. Re-registering replaces.
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the registered tool names, sorted.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs a named tool. An unknown name yields a failed result rather
// than an error so callers can surface it uniformly.
func (r *ToolRegistry) Execute(ctx context.Context, name, input string, params map[string]any) ToolResult {
	t, ok := r.Get(name)
	if !ok {
		return ToolResult{Success: false, Err: fmt.Sprintf("tool %q not found", name)}
	}
	if err := t.ValidateInput(input, params); err != nil {
		return ToolResult{Success: false, Err: fmt.Sprintf("invalid input: %v", err)}
	}
	return t.Execute(ctx, input, params)
}
