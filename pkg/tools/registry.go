package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Sentinel errors for the registry.
var (
	ErrNotFound      = errors.New("tool not found")
	ErrAlreadyExists = errors.New("tool already registered")
	ErrEmptyName     = errors.New("tool name is empty")
)

// Registry holds tools by name. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds tool. Returns ErrAlreadyExists if the name is taken.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool ordered by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Execute dispatches argumentsXML to the named tool. Returns ErrNotFound if
// no such tool is registered; tool errors are wrapped with the tool name.
func (r *Registry) Execute(ctx context.Context, name string, argumentsXML []byte) (string, map[string]interface{}, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	out, meta, err := t.Execute(ctx, argumentsXML)
	if err != nil {
		return "", nil, fmt.Errorf("tool %s execution failed: %w", name, err)
	}
	return out, meta, nil
}

// Dispatch parses a full <tool> call and executes it.
func (r *Registry) Dispatch(ctx context.Context, text string) (string, map[string]interface{}, error) {
	call, err := ParseToolCall(text)
	if err != nil {
		return "", nil, err
	}
	return r.Execute(ctx, call.ToolName, call.GetArgumentsXML())
}
