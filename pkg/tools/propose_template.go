package tools

import (
	"context"
	"fmt"
)

// Template categories the agent may propose. The human accepts or rejects the
// proposal before detailed planning continues.
const (
	TemplateCategoryNewFeature  = "new-feature"
	TemplateCategoryHotfix      = "hotfix"
	TemplateCategoryRefactor    = "refactor"
	TemplateCategoryMigration   = "migration"
	TemplateCategoryInvestigate = "investigation"
)

// templateCategories returns all valid template category tags.
func templateCategories() []string {
	return []string{
		TemplateCategoryNewFeature,
		TemplateCategoryHotfix,
		TemplateCategoryRefactor,
		TemplateCategoryMigration,
		TemplateCategoryInvestigate,
	}
}

// TemplateProposal is the agent's suggested work-pattern classification.
type TemplateProposal struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Rationale   string `json:"rationale"`
}

// ProposeTemplateTool suggests a work template for the human to accept or reject.
type ProposeTemplateTool struct{}

// NewProposeTemplateTool creates a new propose template tool instance.
func NewProposeTemplateTool() *ProposeTemplateTool {
	return &ProposeTemplateTool{}
}

// Definition returns the tool's definition in Claude API format.
func (p *ProposeTemplateTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolProposeTemplate,
		Description: "Propose a work-pattern template for this requirement. The human must accept or reject it before the final plan is emitted.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"category": {
					Type:        "string",
					Description: "Work-pattern classification tag",
					Enum:        templateCategories(),
				},
				"name": {
					Type:        "string",
					Description: "Short human-readable template name",
				},
				"description": {
					Type:        "string",
					Description: "What kind of work this template structures",
				},
				"rationale": {
					Type:        "string",
					Description: "Why this template fits the requirement",
				},
			},
			Required: []string{"category", "name", "description", "rationale"},
		},
	}
}

// Name returns the tool identifier.
func (p *ProposeTemplateTool) Name() string {
	return ToolProposeTemplate
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (p *ProposeTemplateTool) PromptDocumentation() string {
	return `- **propose_template** - Propose a work-pattern template before detailed planning
  - Parameters: category, name, description, rationale (all required)
  - Suspends the exchange until the human accepts or rejects the proposal`
}

// Exec validates the call and returns the parsed proposal.
func (p *ProposeTemplateTool) Exec(_ context.Context, args map[string]any) (any, error) {
	category, _ := args["category"].(string)
	if category == "" {
		return nil, fmt.Errorf("category parameter is required")
	}

	valid := false
	for _, c := range templateCategories() {
		if category == c {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("unknown template category %q", category)
	}

	name, _ := args["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("name parameter is required")
	}

	description, _ := args["description"].(string)
	if description == "" {
		return nil, fmt.Errorf("description parameter is required")
	}

	rationale, _ := args["rationale"].(string)
	if rationale == "" {
		return nil, fmt.Errorf("rationale parameter is required")
	}

	return TemplateProposal{
		Category:    category,
		Name:        name,
		Description: description,
		Rationale:   rationale,
	}, nil
}
