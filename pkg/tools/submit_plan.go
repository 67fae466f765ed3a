package tools

import (
	"context"
	"fmt"
)

// Human involvement levels for a task.
const (
	HumanRolePerforms = "human-performs"
	HumanRoleVerifies = "human-verifies"
)

// Risk and complexity tiers.
const (
	TierHigh   = "high"
	TierMedium = "medium"
	TierLow    = "low"
)

// SubmitPlanTool finalizes the negotiation by emitting the structured plan.
type SubmitPlanTool struct{}

// NewSubmitPlanTool creates a new submit plan tool instance.
func NewSubmitPlanTool() *SubmitPlanTool {
	return &SubmitPlanTool{}
}

// Definition returns the tool's definition in Claude API format.
func (s *SubmitPlanTool) Definition() ToolDefinition {
	tierEnum := []string{TierHigh, TierMedium, TierLow}

	return ToolDefinition{
		Name:        ToolSubmitPlan,
		Description: "Emit the final structured implementation plan. Omitted task fields receive documented defaults.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"title": {
					Type:        "string",
					Description: "Plan title",
				},
				"repository": {
					Type:        "string",
					Description: "Identifier of the repository the plan targets (optional)",
				},
				"role_sequence": {
					Type:        "array",
					Description: "Ordered execution roles that will carry out the plan (optional)",
					Items:       &Property{Type: "string"},
				},
				"content": {
					Type:        "string",
					Description: "Raw negotiated plan narrative (optional)",
				},
				"tasks": {
					Type:        "array",
					Description: "Ordered units of work",
					MinItems:    intPtr(1),
					Items: &Property{
						Type: "object",
						Properties: map[string]Property{
							"id": {
								Type:        "integer",
								Description: "Numeric id, unique within this plan",
							},
							"title": {
								Type:        "string",
								Description: "Short task title",
							},
							"description": {
								Type:        "string",
								Description: "What the task accomplishes",
							},
							"human_role": {
								Type:        "string",
								Description: "Human involvement level (default human-verifies)",
								Enum:        []string{HumanRolePerforms, HumanRoleVerifies},
							},
							"human_action": {
								Type:        "string",
								Description: "Specific human-action category, required when human_role is human-performs",
							},
							"instructions": {
								Type:        "string",
								Description: "Free-text instructions for the human, required when human_role is human-performs",
							},
							"risk": {
								Type:        "string",
								Description: "Risk tier (default medium)",
								Enum:        tierEnum,
							},
							"complexity": {
								Type:        "string",
								Description: "Implementation-complexity tier (default medium)",
								Enum:        tierEnum,
							},
							"depends_on": {
								Type:        "array",
								Description: "Ids of tasks this task depends on (default empty)",
								Items:       &Property{Type: "integer"},
							},
							"requirements": {
								Type:        "array",
								Description: "Requirement statements this task satisfies",
								Items:       &Property{Type: "string"},
							},
							"acceptance_criteria": {
								Type:        "array",
								Description: "Acceptance criteria checked during review",
								Items:       &Property{Type: "string"},
							},
						},
						Required: []string{"id", "title"},
					},
				},
			},
			Required: []string{"title", "tasks"},
		},
	}
}

// Name returns the tool identifier.
func (s *SubmitPlanTool) Name() string {
	return ToolSubmitPlan
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (s *SubmitPlanTool) PromptDocumentation() string {
	return `- **submit_plan** - Emit the final structured implementation plan
  - Parameters: title, tasks (required), repository, role_sequence, content (optional)
  - Each task: id and title required; human_role defaults to human-verifies, risk and complexity default to medium
  - Terminal action: ends the negotiation and produces the plan`
}

// Exec performs shape validation of the call. Field defaulting is the plan
// assembly function's responsibility, so the raw arguments are returned as-is.
func (s *SubmitPlanTool) Exec(_ context.Context, args map[string]any) (any, error) {
	title, _ := args["title"].(string)
	if title == "" {
		return nil, fmt.Errorf("title parameter is required")
	}

	rawTasks, ok := args["tasks"]
	if !ok {
		return nil, fmt.Errorf("tasks parameter is required")
	}
	taskList, ok := rawTasks.([]any)
	if !ok {
		return nil, fmt.Errorf("tasks must be an array")
	}
	if len(taskList) == 0 {
		return nil, fmt.Errorf("tasks cannot be empty")
	}

	for i, raw := range taskList {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("task %d must be an object", i)
		}
		if _, hasID := entry["id"]; !hasID {
			return nil, fmt.Errorf("task %d is missing an id", i)
		}
		if taskTitle, _ := entry["title"].(string); taskTitle == "" {
			return nil, fmt.Errorf("task %d is missing a title", i)
		}
	}

	return args, nil
}
