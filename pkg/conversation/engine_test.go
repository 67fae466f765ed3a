package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"negotiator/pkg/contextmgr"
	"negotiator/pkg/llm"
	"negotiator/pkg/logx"
	"negotiator/pkg/plan"
	"negotiator/pkg/proto"
	"negotiator/pkg/tools"
)

func questionsResponse(callID string) llm.CompletionResponse {
	return llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{{
			ID:   callID,
			Name: tools.ToolAskQuestions,
			Parameters: map[string]any{
				"questions": []any{
					map[string]any{
						"id":       "q1",
						"question": "Which auth provider is in use?",
						"options":  []any{"oauth", "saml"},
					},
				},
			},
		}},
		StopReason: "tool_use",
	}
}

func templateResponse(callID string) llm.CompletionResponse {
	return llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{{
			ID:   callID,
			Name: tools.ToolProposeTemplate,
			Parameters: map[string]any{
				"category":    "new-feature",
				"name":        "ui-change",
				"description": "Small user-facing UI change",
				"rationale":   "The requirement adds one control to an existing page",
			},
		}},
		StopReason: "tool_use",
	}
}

func planResponse(callID string) llm.CompletionResponse {
	return llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{{
			ID:   callID,
			Name: tools.ToolSubmitPlan,
			Parameters: map[string]any{
				"title": "Add a logout control",
				"tasks": []any{
					map[string]any{
						"id":    float64(1),
						"title": "Add logout button to the header",
						"acceptance_criteria": []any{
							"clicking logout ends the session",
						},
					},
				},
			},
		}},
		StopReason: "tool_use",
	}
}

func newTestEngine(responses []llm.CompletionResponse, errs []error) (*Engine, *llm.MockClient) {
	mock := llm.NewMockClient(responses, errs)
	engine := NewEngine(mock, "mock-model", logx.NewLogger("test"))
	return engine, mock
}

func TestSubmitRequirementSurfacesPendingQuestions(t *testing.T) {
	engine, _ := newTestEngine([]llm.CompletionResponse{questionsResponse("call_q")}, nil)

	outcome, err := engine.SubmitRequirement(context.Background(), "add a logout control")
	require.NoError(t, err)
	require.True(t, outcome.Suspended())
	require.Len(t, outcome.Questions, 1)

	pending := engine.Pending()
	assert.Equal(t, PendingAnswers, pending.Kind)
	assert.Equal(t, "call_q", pending.CallID)
}

func TestAnswerQuestionsWithoutPendingFailsLoudly(t *testing.T) {
	engine, mock := newTestEngine(nil, nil)

	_, err := engine.AnswerQuestions(context.Background(), map[string]string{"q1": "oauth"})
	require.ErrorIs(t, err, ErrProtocolViolation)

	// Nothing reached the agent and nothing was recorded.
	assert.Empty(t, mock.Requests())
	assert.Equal(t, 0, engine.Transcript().MessageCount())
}

func TestAnswerValidationLeavesStateUnchanged(t *testing.T) {
	engine, _ := newTestEngine([]llm.CompletionResponse{questionsResponse("call_q")}, nil)
	_, err := engine.SubmitRequirement(context.Background(), "requirement")
	require.NoError(t, err)
	before := engine.Transcript().MessageCount()

	// Missing answer for q1
	_, err = engine.AnswerQuestions(context.Background(), map[string]string{})
	require.ErrorIs(t, err, ErrProtocolViolation)

	// Unknown question id
	_, err = engine.AnswerQuestions(context.Background(), map[string]string{"q1": "oauth", "q9": "x"})
	require.ErrorIs(t, err, ErrProtocolViolation)

	assert.Equal(t, PendingAnswers, engine.Pending().Kind)
	assert.Equal(t, before, engine.Transcript().MessageCount())
}

func TestFullNegotiationScenario(t *testing.T) {
	engine, _ := newTestEngine([]llm.CompletionResponse{
		questionsResponse("call_q"),
		templateResponse("call_t"),
		planResponse("call_p"),
	}, nil)

	var events []proto.EventType
	engine.SetEventSink(func(eventType proto.EventType, _ any) {
		events = append(events, eventType)
	})

	ctx := context.Background()

	outcome, err := engine.SubmitRequirement(ctx, "add a logout control")
	require.NoError(t, err)
	require.NotEmpty(t, outcome.Questions)

	outcome, err = engine.AnswerQuestions(ctx, map[string]string{"q1": "oauth"})
	require.NoError(t, err)
	require.NotNil(t, outcome.Template)
	assert.Equal(t, PendingTemplate, engine.Pending().Kind)

	outcome, err = engine.AcceptTemplate(ctx)
	require.NoError(t, err)
	require.NotNil(t, outcome.Plan)
	assert.True(t, engine.Pending().IsEmpty())

	// Defaults applied to the omitted task fields
	task := outcome.Plan.Tasks[0]
	assert.Equal(t, plan.HumanRoleVerifies, task.HumanRole)
	assert.Equal(t, plan.TierMedium, task.Risk)
	assert.Equal(t, plan.TierMedium, task.Complexity)

	// The accepted template rode along onto the plan
	assert.Equal(t, "ui-change", outcome.Plan.Template.Name)

	// Causal event order: questions, template, then plan
	var structural []proto.EventType
	for _, ev := range events {
		switch ev {
		case proto.EventQuestionsPosted, proto.EventTemplateProposed, proto.EventPlanReady:
			structural = append(structural, ev)
		}
	}
	assert.Equal(t, []proto.EventType{
		proto.EventQuestionsPosted,
		proto.EventTemplateProposed,
		proto.EventPlanReady,
	}, structural)
}

func TestRejectTemplateResumesNegotiation(t *testing.T) {
	engine, mock := newTestEngine([]llm.CompletionResponse{
		templateResponse("call_t"),
		planResponse("call_p"),
	}, nil)

	ctx := context.Background()
	_, err := engine.SubmitRequirement(ctx, "hotfix the crash")
	require.NoError(t, err)
	require.Equal(t, PendingTemplate, engine.Pending().Kind)

	outcome, err := engine.RejectTemplate(ctx, "this is a hotfix, not a feature")
	require.NoError(t, err)
	require.NotNil(t, outcome.Plan)

	// No template was ever accepted, so the plan carries the generic fallback
	assert.Equal(t, "generic", outcome.Plan.Template.Name)

	// The rejection feedback was addressed to the pending call
	reqs := mock.Requests()
	last := reqs[len(reqs)-1]
	found := false
	for _, msg := range last.Messages {
		if msg.Role == llm.RoleUser && len(msg.Content) > 0 &&
			strings.Contains(msg.Content, "call_t") && strings.Contains(msg.Content, "rejected") {
			found = true
		}
	}
	assert.True(t, found, "rejection result should reference the pending call id")
}

func TestFreeTextGetsCorrectiveRetry(t *testing.T) {
	engine, mock := newTestEngine([]llm.CompletionResponse{
		{Content: "Let me think about this for a moment."},
		planResponse("call_p"),
	}, nil)

	outcome, err := engine.SubmitRequirement(context.Background(), "requirement")
	require.NoError(t, err)
	require.NotNil(t, outcome.Plan)

	// Two agent calls: the free-text one, then the corrected one
	assert.Len(t, mock.Requests(), 2)
}

func TestFreeTextRetryCeilingIsTerminal(t *testing.T) {
	rambling := llm.CompletionResponse{Content: "still thinking..."}
	engine, mock := newTestEngine([]llm.CompletionResponse{
		rambling, rambling, rambling, rambling, rambling,
	}, nil)

	_, err := engine.SubmitRequirement(context.Background(), "requirement")
	require.ErrorIs(t, err, ErrTextRetriesExceeded)
	assert.Len(t, mock.Requests(), MaxTextRetries+1)
}

func TestAgentFailureLeavesPendingStateUnchanged(t *testing.T) {
	engine, _ := newTestEngine(
		[]llm.CompletionResponse{questionsResponse("call_q"), templateResponse("call_t")},
		[]error{nil, errors.New("transport blew up"), nil},
	)

	ctx := context.Background()
	_, err := engine.SubmitRequirement(ctx, "requirement")
	require.NoError(t, err)

	msgsBefore := engine.Transcript().Messages()

	// The agent call fails after the resume mutated local state; the engine
	// must roll the transcript and pending slot back so the same resume can
	// simply be retried.
	_, err = engine.AnswerQuestions(ctx, map[string]string{"q1": "oauth"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrProtocolViolation)

	pending := engine.Pending()
	assert.Equal(t, PendingAnswers, pending.Kind)
	assert.Equal(t, "call_q", pending.CallID)
	assert.Equal(t, msgsBefore, engine.Transcript().Messages())

	// Retrying the identical call now succeeds.
	outcome, err := engine.AnswerQuestions(ctx, map[string]string{"q1": "oauth"})
	require.NoError(t, err)
	require.NotNil(t, outcome.Template)
	assert.Equal(t, PendingTemplate, engine.Pending().Kind)
}

func TestAgentFailureRollsBackAcceptedTemplate(t *testing.T) {
	engine, _ := newTestEngine(
		[]llm.CompletionResponse{templateResponse("call_t"), planResponse("call_p")},
		[]error{nil, errors.New("transport blew up"), nil},
	)

	ctx := context.Background()
	_, err := engine.SubmitRequirement(ctx, "requirement")
	require.NoError(t, err)
	require.Equal(t, PendingTemplate, engine.Pending().Kind)

	_, err = engine.AcceptTemplate(ctx)
	require.Error(t, err)

	// The acceptance was undone along with the pending slot.
	assert.Nil(t, engine.AcceptedTemplate())
	assert.Equal(t, PendingTemplate, engine.Pending().Kind)

	outcome, err := engine.AcceptTemplate(ctx)
	require.NoError(t, err)
	require.NotNil(t, outcome.Plan)
	assert.Equal(t, "ui-change", outcome.Plan.Template.Name)
}

func TestMalformedToolCallIsCorrected(t *testing.T) {
	bad := llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{{
			ID:         "call_bad",
			Name:       tools.ToolProposeTemplate,
			Parameters: map[string]any{"category": "unknown-category", "name": "x", "description": "y", "rationale": "z"},
		}},
	}
	engine, mock := newTestEngine([]llm.CompletionResponse{bad, planResponse("call_p")}, nil)

	outcome, err := engine.SubmitRequirement(context.Background(), "requirement")
	require.NoError(t, err)
	require.NotNil(t, outcome.Plan)
	assert.Len(t, mock.Requests(), 2)
}

func TestStateRoundTripPreservesPendingCall(t *testing.T) {
	engine, _ := newTestEngine([]llm.CompletionResponse{questionsResponse("call_q")}, nil)
	_, err := engine.SubmitRequirement(context.Background(), "requirement")
	require.NoError(t, err)

	snapshot, err := engine.MarshalState()
	require.NoError(t, err)

	restored, _ := newTestEngine([]llm.CompletionResponse{templateResponse("call_t")}, nil)
	require.NoError(t, restored.RestoreState(snapshot))

	assert.Equal(t, engine.Pending(), restored.Pending())
	assert.Equal(t, engine.Transcript().Messages(), restored.Transcript().Messages())

	// The restored engine can resume the same pending call
	outcome, err := restored.AnswerQuestions(context.Background(), map[string]string{"q1": "oauth"})
	require.NoError(t, err)
	assert.NotNil(t, outcome.Template)
}

func TestOutcomeAccumulatesTokenUsage(t *testing.T) {
	free := llm.CompletionResponse{
		Content: "Let me think about this for a moment.",
		Usage:   llm.TokenUsage{PromptTokens: 10, CompletionTokens: 2},
	}
	planned := planResponse("call_p")
	planned.Usage = llm.TokenUsage{PromptTokens: 30, CompletionTokens: 8}
	engine, _ := newTestEngine([]llm.CompletionResponse{free, planned}, nil)

	outcome, err := engine.SubmitRequirement(context.Background(), "requirement")
	require.NoError(t, err)
	require.NotNil(t, outcome.Plan)

	// Both the free-text attempt and the corrected one are billed.
	assert.Equal(t, 40, outcome.Usage.PromptTokens)
	assert.Equal(t, 10, outcome.Usage.CompletionTokens)
}

func TestEngineUsesRegisteredModelBudget(t *testing.T) {
	mock := llm.NewMockClient(nil, nil)

	engine := NewEngine(mock, "claude-sonnet-4-20250514", logx.NewLogger("test"))
	assert.Equal(t, 200000, engine.Transcript().Limits().MaxContextTokens)

	fallback := NewEngine(mock, "mock-model", logx.NewLogger("test"))
	assert.Equal(t, contextmgr.DefaultMaxContextTokens, fallback.Transcript().Limits().MaxContextTokens)
}

func TestResetClearsEverything(t *testing.T) {
	engine, _ := newTestEngine([]llm.CompletionResponse{questionsResponse("call_q")}, nil)
	_, err := engine.SubmitRequirement(context.Background(), "requirement")
	require.NoError(t, err)

	engine.Reset()
	assert.True(t, engine.Pending().IsEmpty())
	assert.Equal(t, 0, engine.Transcript().MessageCount())
	assert.Nil(t, engine.AcceptedTemplate())
}
