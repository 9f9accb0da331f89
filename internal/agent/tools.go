package agent

import (
	"context"
	"fmt"

	"github.com/nfrm/cary-services/internal/provider"
)

// ToolHandler executes a tool call and returns the result as a string.
type ToolHandler func(ctx context.Context, args string) (string, error)

// ToolRegistry holds available tools and their handlers. Tools are registered
// at startup and only read afterwards.
type ToolRegistry struct {
	defs     []provider.Tool
	handlers map[string]ToolHandler
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		handlers: make(map[string]ToolHandler),
	}
}

// Register adds a tool definition and its handler. A second registration
// under the same name replaces the first.
func (r *ToolRegistry) Register(def provider.Tool, handler ToolHandler) {
	name := def.Function.Name
	if _, exists := r.handlers[name]; exists {
		for i, d := range r.defs {
			if d.Function.Name == name {
				r.defs[i] = def
			}
		}
	} else {
		r.defs = append(r.defs, def)
	}
	r.handlers[name] = handler
}

// Definitions returns all tool definitions for the LLM request.
func (r *ToolRegistry) Definitions() []provider.Tool {
	return r.defs
}

// Names returns the registered tool names in registration order.
func (r *ToolRegistry) Names() []string {
	names := make([]string, len(r.defs))
	for i, d := range r.defs {
		names[i] = d.Function.Name
	}
	return names
}

// Execute runs a tool by name with the given JSON arguments.
func (r *ToolRegistry) Execute(ctx context.Context, name, args string) (string, error) {
	h, ok := r.handlers[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return h(ctx, args)
}
