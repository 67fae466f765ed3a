package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskQuestionsDefinition(t *testing.T) {
	def := NewAskQuestionsTool().Definition()

	assert.Equal(t, ToolAskQuestions, def.Name)
	require.Contains(t, def.InputSchema.Properties, "questions")
	assert.Equal(t, []string{"questions"}, def.InputSchema.Required)

	item := def.InputSchema.Properties["questions"].Items
	require.NotNil(t, item)
	assert.ElementsMatch(t, []string{"id", "question", "options"}, item.Required)
}

func TestAskQuestionsExec(t *testing.T) {
	tool := NewAskQuestionsTool()
	ctx := context.Background()

	result, err := tool.Exec(ctx, map[string]any{
		"questions": []any{
			map[string]any{
				"id":       "q1",
				"question": "Where should the logout control live?",
				"options":  []any{"Header menu", "Settings page"},
			},
		},
	})
	require.NoError(t, err)

	questions, ok := result.([]Question)
	require.True(t, ok)
	require.Len(t, questions, 1)
	assert.Equal(t, "q1", questions[0].ID)
	assert.Len(t, questions[0].Options, 2)
}

func TestAskQuestionsExecRejectsSingleOption(t *testing.T) {
	tool := NewAskQuestionsTool()

	_, err := tool.Exec(context.Background(), map[string]any{
		"questions": []any{
			map[string]any{
				"id":       "q1",
				"question": "Proceed?",
				"options":  []any{"Yes"},
			},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least two options")
}

func TestAskQuestionsExecRejectsDuplicateIDs(t *testing.T) {
	tool := NewAskQuestionsTool()

	_, err := tool.Exec(context.Background(), map[string]any{
		"questions": []any{
			map[string]any{"id": "q1", "question": "A?", "options": []any{"x", "y"}},
			map[string]any{"id": "q1", "question": "B?", "options": []any{"x", "y"}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate question id")
}

func TestProposeTemplateExec(t *testing.T) {
	tool := NewProposeTemplateTool()

	result, err := tool.Exec(context.Background(), map[string]any{
		"category":    TemplateCategoryNewFeature,
		"name":        "Feature rollout",
		"description": "Standard feature work with staged rollout",
		"rationale":   "Requirement adds new user-facing behavior",
	})
	require.NoError(t, err)

	proposal, ok := result.(TemplateProposal)
	require.True(t, ok)
	assert.Equal(t, TemplateCategoryNewFeature, proposal.Category)
}

func TestProposeTemplateExecRejectsUnknownCategory(t *testing.T) {
	tool := NewProposeTemplateTool()

	_, err := tool.Exec(context.Background(), map[string]any{
		"category":    "yolo",
		"name":        "n",
		"description": "d",
		"rationale":   "r",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template category")
}

func TestSubmitPlanExec(t *testing.T) {
	tool := NewSubmitPlanTool()

	args := map[string]any{
		"title": "Add logout control",
		"tasks": []any{
			map[string]any{"id": float64(1), "title": "Add logout endpoint"},
		},
	}
	result, err := tool.Exec(context.Background(), args)
	require.NoError(t, err)
	// Raw args pass through untouched; defaulting belongs to plan assembly.
	assert.Equal(t, args, result)
}

func TestSubmitPlanExecValidation(t *testing.T) {
	tool := NewSubmitPlanTool()
	ctx := context.Background()

	_, err := tool.Exec(ctx, map[string]any{"tasks": []any{}})
	assert.ErrorContains(t, err, "title parameter is required")

	_, err = tool.Exec(ctx, map[string]any{"title": "t"})
	assert.ErrorContains(t, err, "tasks parameter is required")

	_, err = tool.Exec(ctx, map[string]any{"title": "t", "tasks": []any{}})
	assert.ErrorContains(t, err, "tasks cannot be empty")

	_, err = tool.Exec(ctx, map[string]any{
		"title": "t",
		"tasks": []any{map[string]any{"title": "missing id"}},
	})
	assert.ErrorContains(t, err, "missing an id")
}

func TestProviderExposesNegotiationTools(t *testing.T) {
	provider := NewProvider(NegotiationTools)

	defs := provider.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, ToolAskQuestions, defs[0].Name)
	assert.Equal(t, ToolProposeTemplate, defs[1].Name)
	assert.Equal(t, ToolSubmitPlan, defs[2].Name)

	tool, err := provider.Get(ToolSubmitPlan)
	require.NoError(t, err)
	assert.Equal(t, ToolSubmitPlan, tool.Name())
}

func TestProviderRejectsDisallowedTool(t *testing.T) {
	provider := NewProvider([]string{ToolSubmitPlan})

	_, err := provider.Get(ToolAskQuestions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}
