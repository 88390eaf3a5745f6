package aitools

import (
	"sort"

	"surveyor/llm"
)

// Registry maps tool names to their implementations and produces the
// provider-agnostic definitions advertised to the model.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry holding the given tools. Registering two
// tools under the same name is last-write-wins: the later tool replaces the
// earlier one.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool. A tool already registered under the same name is
// replaced (last-write-wins).
func (r *Registry) Register(t Tool) {
	name := t.ToolName()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns the tool registered under name, or nil.
func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Definitions returns the tool declarations for a chat request, in
// registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        t.ToolName(),
			Description: t.ToolDescription(),
			InputSchema: t.ToolPayloadSchema().JSON(),
		})
	}
	return defs
}

// SortedNames returns the registered tool names sorted alphabetically,
// for stable display output.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}
