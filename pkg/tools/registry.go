package tools

import (
	"fmt"
	"sync"
)

// ToolFactory creates a tool instance.
type ToolFactory func() Tool

// ToolMeta contains metadata about a tool for documentation and discovery.
type ToolMeta struct {
	Name        string
	Description string
	InputSchema InputSchema
}

// toolDescriptor contains the factory and metadata for a tool.
type toolDescriptor struct {
	meta    ToolMeta
	factory ToolFactory
}

// immutableRegistry is the global, read-only tool registry.
type immutableRegistry struct {
	mu     sync.RWMutex
	sealed bool
	tools  map[string]toolDescriptor
}

// Global registry instance - populated in init().
//
//nolint:gochecknoglobals // Factory pattern requires global registry
var globalRegistry = &immutableRegistry{
	tools: make(map[string]toolDescriptor),
}

func init() { //nolint:gochecknoinits // Negotiation tools are a fixed, static set
	register(ToolAskQuestions, func() Tool { return NewAskQuestionsTool() })
	register(ToolProposeTemplate, func() Tool { return NewProposeTemplateTool() })
	register(ToolSubmitPlan, func() Tool { return NewSubmitPlanTool() })
}

// register adds a tool factory to the global registry.
// Panics if called after the registry is sealed.
func register(name string, factory ToolFactory) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if globalRegistry.sealed {
		panic(fmt.Sprintf("tool registry sealed - cannot register tool '%s'", name))
	}

	def := factory().Definition()
	globalRegistry.tools[name] = toolDescriptor{
		meta: ToolMeta{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		},
		factory: factory,
	}
}

// Seal prevents further tool registrations.
// Called automatically when first Provider is created.
func Seal() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.sealed = true
}

// ListTools returns metadata for all registered tools.
func ListTools() []ToolMeta {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]ToolMeta, 0, len(globalRegistry.tools))
	for _, desc := range globalRegistry.tools {
		result = append(result, desc.meta)
	}
	return result
}

// Provider exposes a fixed subset of registered tools to one conversation.
type Provider struct {
	tools    map[string]Tool
	allowSet map[string]struct{}
	mu       sync.Mutex
}

// NewProvider creates a Provider for the given allowed tool names.
// Automatically seals the global registry on first use.
func NewProvider(allowedTools []string) *Provider {
	Seal() // Ensure registry is immutable

	allowSet := make(map[string]struct{}, len(allowedTools))
	for _, name := range allowedTools {
		allowSet[name] = struct{}{}
	}

	return &Provider{
		tools:    make(map[string]Tool),
		allowSet: allowSet,
	}
}

// Get returns the tool with the given name, creating it on first use.
func (p *Provider) Get(name string) (Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, allowed := p.allowSet[name]; !allowed {
		return nil, fmt.Errorf("tool '%s' not allowed for this conversation", name)
	}

	if tool, exists := p.tools[name]; exists {
		return tool, nil
	}

	globalRegistry.mu.RLock()
	desc, exists := globalRegistry.tools[name]
	globalRegistry.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("tool '%s' not registered", name)
	}

	tool := desc.factory()
	p.tools[name] = tool
	return tool, nil
}

// List returns metadata for the tools this provider exposes, in a stable order.
func (p *Provider) List() []ToolMeta {
	all := ListTools()
	result := make([]ToolMeta, 0, len(p.allowSet))
	// Preserve the canonical negotiation ordering rather than map order.
	for _, name := range NegotiationTools {
		if _, allowed := p.allowSet[name]; !allowed {
			continue
		}
		for i := range all {
			if all[i].Name == name {
				result = append(result, all[i])
				break
			}
		}
	}
	return result
}

// Definitions returns wire-format definitions for the provider's tools.
func (p *Provider) Definitions() []ToolDefinition {
	metas := p.List()
	defs := make([]ToolDefinition, len(metas))
	for i := range metas {
		defs[i] = ToolDefinition{
			Name:        metas[i].Name,
			Description: metas[i].Description,
			InputSchema: metas[i].InputSchema,
		}
	}
	return defs
}
