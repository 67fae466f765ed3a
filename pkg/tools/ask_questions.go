package tools

import (
	"context"
	"fmt"
)

// Question is one clarifying question with labeled answer options.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"question"`
	Options []string `json:"options"`
}

// AskQuestionsTool suspends planning to gather clarifications from the human.
type AskQuestionsTool struct{}

// NewAskQuestionsTool creates a new ask questions tool instance.
func NewAskQuestionsTool() *AskQuestionsTool {
	return &AskQuestionsTool{}
}

// Definition returns the tool's definition in Claude API format.
func (a *AskQuestionsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolAskQuestions,
		Description: "Ask the human clarifying questions before committing to a plan. Each question must offer at least two labeled options.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"questions": {
					Type:        "array",
					Description: "Clarifying questions to present to the human",
					MinItems:    intPtr(1),
					Items: &Property{
						Type: "object",
						Properties: map[string]Property{
							"id": {
								Type:        "string",
								Description: "Stable identifier used to address the answer back to this question",
							},
							"question": {
								Type:        "string",
								Description: "The question text",
							},
							"options": {
								Type:        "array",
								Description: "Labeled answer options (at least two)",
								MinItems:    intPtr(2),
								Items:       &Property{Type: "string"},
							},
						},
						Required: []string{"id", "question", "options"},
					},
				},
			},
			Required: []string{"questions"},
		},
	}
}

// Name returns the tool identifier.
func (a *AskQuestionsTool) Name() string {
	return ToolAskQuestions
}

// PromptDocumentation returns markdown documentation for LLM prompts.
func (a *AskQuestionsTool) PromptDocumentation() string {
	return `- **ask_questions** - Ask the human clarifying questions before planning
  - Parameters: questions (required array of {id, question, options})
  - Every question needs at least two labeled options
  - Suspends the exchange until the human answers all questions`
}

// Exec validates the call and returns the parsed question set.
func (a *AskQuestionsTool) Exec(_ context.Context, args map[string]any) (any, error) {
	rawQuestions, ok := args["questions"]
	if !ok {
		return nil, fmt.Errorf("questions parameter is required")
	}

	questionList, ok := rawQuestions.([]any)
	if !ok {
		return nil, fmt.Errorf("questions must be an array")
	}
	if len(questionList) == 0 {
		return nil, fmt.Errorf("questions cannot be empty")
	}

	questions := make([]Question, 0, len(questionList))
	seen := make(map[string]bool, len(questionList))
	for i, raw := range questionList {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("question %d must be an object", i)
		}

		id, _ := entry["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("question %d is missing an id", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate question id %q", id)
		}
		seen[id] = true

		text, _ := entry["question"].(string)
		if text == "" {
			return nil, fmt.Errorf("question %q is missing question text", id)
		}

		rawOptions, _ := entry["options"].([]any)
		options := make([]string, 0, len(rawOptions))
		for _, opt := range rawOptions {
			if optStr, ok := opt.(string); ok && optStr != "" {
				options = append(options, optStr)
			}
		}
		if len(options) < 2 {
			return nil, fmt.Errorf("question %q must offer at least two options, got %d", id, len(options))
		}

		questions = append(questions, Question{ID: id, Text: text, Options: options})
	}

	return questions, nil
}
