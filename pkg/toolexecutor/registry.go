package toolexecutor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/oslianyabel/basic-wa-bot/pkg/completion"
)

// Handler runs a tool. Function tools receive the decoded arguments plus the
// caller's user ID; custom tools receive {"tool_input": input}.
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// Tool defines a tool's metadata and handler
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the arguments. Ignored for custom tools.
	Parameters map[string]interface{}
	// Custom marks a free-form input tool
	Custom  bool
	Handler Handler
}

// Registry holds the tools available to the agent
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Tool
	schemas map[string]*gojsonschema.Schema
	logger  zerolog.Logger
}

// NewRegistry creates an empty Registry that logs nowhere until SetLogger is
// called
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*Tool),
		schemas: make(map[string]*gojsonschema.Schema),
		logger:  zerolog.Nop(),
	}
}

// SetLogger sets the logger used for registration events
func (r *Registry) SetLogger(logger zerolog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger.With().Str("component", "tool_registry").Logger()
}

// Register adds a tool, compiling its parameter schema
func (r *Registry) Register(tool Tool) error {
	if err := validateTool(tool); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	var schema *gojsonschema.Schema
	if !tool.Custom && tool.Parameters != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.Parameters))
		if err != nil {
			return fmt.Errorf("failed to compile schema for %s: %w", tool.Name, err)
		}
		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	r.tools[tool.Name] = &tool
	r.schemas[tool.Name] = schema

	r.logger.Debug().Str("tool", tool.Name).Bool("custom", tool.Custom).Msg("Tool registered")
	return nil
}

// Get returns a tool by name
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

func (r *Registry) lookup(name string) (*Tool, *gojsonschema.Schema) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name], r.schemas[name]
}

// Names returns the registered tool names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schemas returns the descriptors sent to the completion endpoint, ordered by
// name
func (r *Registry) Schemas() []completion.ToolSchema {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]completion.ToolSchema, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		schema := completion.ToolSchema{
			Type:        "function",
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		}
		if tool.Custom {
			schema.Type = "custom"
			schema.Parameters = nil
		}
		schemas = append(schemas, schema)
	}
	return schemas
}

func validateTool(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}
	return nil
}

// validateArguments validates arguments against a compiled schema
func validateArguments(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errors := []string{}
		for _, err := range result.Errors() {
			errors = append(errors, err.String())
		}
		return fmt.Errorf("validation errors: %v", errors)
	}

	return nil
}
