// Package toolkit implements the tool registry and dispatch: named tool
// lookup, JSON-Schema parameter advertisement, and result normalization.
// The registry only defines the dispatch mechanism; concrete tool
// implementations are registered by the caller.
package toolkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/xonecas/symbrt/message"
)

// ErrToolNotFound is returned by Dispatch when no tool by that name is
// registered.
var ErrToolNotFound = errors.New("toolkit: tool not found")

// ErrDuplicateTool is returned by Register when the name is already
// taken; tool names within one registry are unique.
var ErrDuplicateTool = errors.New("toolkit: duplicate tool name")

// ToolContext carries the ambient environment a handler runs with.
type ToolContext struct {
	WorkingDir string
	Env        map[string]string
	Timeout    int // seconds; 0 is filled in by the agent loop from Options.ToolTimeout
}

// Handler is the single normalized tool-handler signature: it takes the
// decoded arguments and a ToolContext and returns a string or a richer
// result-like value (see normalizeResult), or an error. ToolContext
// carries no deadline of its own; Timeout is advisory to the handler.
// The agent loop enforces its own Options.ToolTimeout by wall clock, so
// a handler that overruns keeps its goroutine until it returns on its
// own.
type Handler func(arguments map[string]any, tc ToolContext) (any, error)

// entry binds a descriptor, its compiled schema, and its handler.
type entry struct {
	descriptor message.ToolDescriptor
	schema     *jsonschema.Schema
	handler    Handler
}

// Registry maps unique tool names to a descriptor and handler.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool. It is a synchronous configuration error to
// register a duplicate name or a descriptor whose Parameters do not
// compile as JSON Schema.
func (r *Registry) Register(desc message.ToolDescriptor, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, desc.Name)
	}

	schema, err := compileSchema(desc.Name, desc.Parameters)
	if err != nil {
		return err
	}

	r.entries[desc.Name] = entry{descriptor: desc, schema: schema, handler: handler}
	return nil
}

func compileSchema(name string, params json.RawMessage) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	var doc any
	if err := json.Unmarshal(params, &doc); err != nil {
		return nil, fmt.Errorf("toolkit: tool %q has invalid parameters JSON: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	resource := "symbrt://tool/" + name + ".json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("toolkit: tool %q has invalid JSON Schema: %w", name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("toolkit: tool %q has invalid JSON Schema: %w", name, err)
	}
	return schema, nil
}

// Definitions returns the descriptors the model should see. With no
// filter, every registered tool is returned; with a filter, only tools
// whose name appears in it (used by a caller wiring a restricted
// toolset for a sub-agent).
func (r *Registry) Definitions(filter ...string) []message.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var allow map[string]struct{}
	if len(filter) > 0 {
		allow = make(map[string]struct{}, len(filter))
		for _, name := range filter {
			allow[name] = struct{}{}
		}
	}

	defs := make([]message.ToolDescriptor, 0, len(r.entries))
	for name, e := range r.entries {
		if allow != nil {
			if _, ok := allow[name]; !ok {
				continue
			}
		}
		defs = append(defs, e.descriptor)
	}
	return defs
}

// Subset returns a new registry containing only the named tools,
// sharing their descriptors and handlers with r. Unknown names are
// ignored. Used to hand a restricted toolset to a nested agent.
func (r *Registry) Subset(names ...string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := NewRegistry()
	for _, name := range names {
		if e, ok := r.entries[name]; ok {
			out.entries[name] = e
		}
	}
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}
