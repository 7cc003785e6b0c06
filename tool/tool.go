package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	shrikeerrors "github.com/umbra-intel/shrike/errors"
)

// Parameter defines a tool parameter
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, integer, number, boolean, object, array
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// Result is the uniform invocation envelope returned by every tool call,
// built-in or remote. Success=false carries the error string; the original
// tool name and arguments are always echoed back.
type Result struct {
	Success bool           `json:"success"`
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Text renders the result payload as a JSON string suitable for folding back
// into a model context.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(data)
}

// Handler executes a tool call. Handlers are context-aware and may block on
// network I/O; they report domain failures through the returned error, which
// Invoke folds into the failure envelope.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Tool represents a callable, schema-described capability
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	// Origin identifies where the tool came from: "builtin" or the provider name.
	Origin  string  `json:"origin,omitempty"`
	Handler Handler `json:"-"`

	schemaOnce  sync.Once
	inputSchema map[string]any
	jsonSchema  map[string]any
}

// Invoke runs the tool and always returns the uniform envelope; it never
// returns an error and never panics out.
func (t *Tool) Invoke(ctx context.Context, args map[string]any) (res *Result) {
	if args == nil {
		args = make(map[string]any)
	}
	res = &Result{Tool: t.Name, Args: args}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Payload = nil
			res.Error = fmt.Sprintf("tool %s panicked: %v", t.Name, r)
		}
	}()

	if t.Handler == nil {
		res.Error = fmt.Sprintf("tool %s has no handler", t.Name)
		return res
	}
	if err := t.ValidateArgs(args); err != nil {
		res.Error = err.Error()
		return res
	}
	t.applyDefaults(args)

	payload, err := t.Handler(ctx, args)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Payload = payload
	return res
}

// ValidateArgs validates the provided arguments against the tool's parameters
func (t *Tool) ValidateArgs(args map[string]any) error {
	for _, param := range t.Parameters {
		if param.Required {
			if _, ok := args[param.Name]; !ok {
				return fmt.Errorf("missing required parameter: %s", param.Name)
			}
		}
	}
	return nil
}

func (t *Tool) applyDefaults(args map[string]any) {
	for _, param := range t.Parameters {
		if param.Default == nil {
			continue
		}
		if _, ok := args[param.Name]; !ok {
			args[param.Name] = param.Default
		}
	}
}

// ToJSONSchema returns the tool definition in JSON schema format for LLM
// binding. The schema is computed once per tool and the same map is returned
// on every call; callers must treat it as read-only. Tools are immutable once
// registered, so the cache never goes stale.
func (t *Tool) ToJSONSchema() map[string]any {
	t.compileSchemas()
	return t.jsonSchema
}

// InputSchema returns the bare JSON-schema object describing the parameters,
// the shape exchanged with remote tool servers. Like ToJSONSchema, the
// returned map is computed once and shared.
func (t *Tool) InputSchema() map[string]any {
	t.compileSchemas()
	return t.inputSchema
}

func (t *Tool) compileSchemas() {
	t.schemaOnce.Do(func() {
		properties := make(map[string]any)
		required := make([]string, 0)

		for _, param := range t.Parameters {
			prop := map[string]any{
				"type":        param.Type,
				"description": param.Description,
			}
			if len(param.Enum) > 0 {
				prop["enum"] = param.Enum
			}
			if param.Default != nil {
				prop["default"] = param.Default
			}
			properties[param.Name] = prop

			if param.Required {
				required = append(required, param.Name)
			}
		}

		t.inputSchema = map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		}
		t.jsonSchema = map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.inputSchema,
			},
		}
	})
}

// Registry manages an ordered collection of tools. Order is registration
// order: built-ins first, then provider tools in configured provider order.
// Names are unique across the set; the first registration wins.
// All operations are thread-safe using RWMutex protection.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry. A duplicate name is rejected so the
// earlier registration stays authoritative.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Deregister removes every tool registered by the given origin; used when a
// provider connection is torn down before reconnecting.
func (r *Registry) Deregister(origin string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	kept := r.order[:0]
	for _, name := range r.order {
		t := r.tools[name]
		if t != nil && t.Origin == origin {
			delete(r.tools, name)
			removed++
			continue
		}
		kept = append(kept, name)
	}
	r.order = kept
	return removed
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %s: %w", name, shrikeerrors.ErrToolNotFound)
	}
	return t, nil
}

// List returns all registered tools in registration order
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// CountByOrigin returns how many registered tools carry the given origin
func (r *Registry) CountByOrigin(origin string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.tools {
		if t.Origin == origin {
			n++
		}
	}
	return n
}

// ToJSONSchemas returns all tools in JSON schema format, in registry order
func (r *Registry) ToJSONSchemas() []map[string]any {
	schemas := make([]map[string]any, 0, r.Len())
	for _, t := range r.List() {
		schemas = append(schemas, t.ToJSONSchema())
	}
	return schemas
}

// Execute runs a tool by name with given arguments. An unknown name yields a
// structured failure envelope, never an error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) *Result {
	t, err := r.Get(name)
	if err != nil {
		return &Result{Tool: name, Args: args, Error: err.Error()}
	}
	return t.Invoke(ctx, args)
}

// MarshalJSON customizes JSON marshaling for Registry
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToJSONSchemas())
}
