// Package tools provides the structured action schemas the agent may invoke
// during plan negotiation, plus the registry that exposes them.
package tools

import "context"

// Property describes a single field in a tool's JSON schema.
//
//nolint:govet // fieldalignment: struct layout matches JSON serialization requirements
type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Items       *Property           `json:"items,omitempty"`      // For array types
	Properties  map[string]Property `json:"properties,omitempty"` // For object types
	Required    []string            `json:"required,omitempty"`   // For object types
	Minimum     *int                `json:"minimum,omitempty"`
	MinItems    *int                `json:"minItems,omitempty"`
}

// InputSchema describes the parameters a tool accepts.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition is the wire-level description of a tool, in Claude API format.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// Tool is a named, schema-constrained action the agent may invoke.
// Exec validates and normalizes the raw parameters of a call; it performs no
// side effects, since structured calls are resolved by the conversation engine.
type Tool interface {
	// Definition returns the tool's definition in Claude API format.
	Definition() ToolDefinition

	// Name returns the tool identifier.
	Name() string

	// PromptDocumentation returns markdown documentation for LLM prompts.
	PromptDocumentation() string

	// Exec validates the call parameters and returns the normalized payload.
	Exec(ctx context.Context, args map[string]any) (any, error)
}

// intPtr is a helper for schema literals.
func intPtr(v int) *int { return &v }
