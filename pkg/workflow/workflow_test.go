package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"negotiator/pkg/conversation"
	"negotiator/pkg/llm"
	"negotiator/pkg/metrics"
	"negotiator/pkg/plan"
	"negotiator/pkg/proto"
	"negotiator/pkg/review"
	"negotiator/pkg/tools"
)

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

func questionsResponse(callID string) llm.CompletionResponse {
	return llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{{
			ID:   callID,
			Name: tools.ToolAskQuestions,
			Parameters: map[string]any{
				"questions": []any{
					map[string]any{
						"id":       "q1",
						"question": "Which page hosts the control?",
						"options":  []any{"header", "settings"},
					},
				},
			},
		}},
		StopReason: "tool_use",
	}
}

type stubReviewer struct {
	narrative string
	err       error
}

func (s *stubReviewer) Review(_ context.Context, _ *plan.Plan, _ proto.ImplementationRef) (string, error) {
	return s.narrative, s.err
}

const approvingNarrative = `## Summary
The implementation matches the plan.

clicking logout ends the session: pass

Confidence: 95
Recommendation: approve`

const failingNarrative = `## Summary
The logout control is incomplete.

clicking logout ends the session: failed

Issues:
1. Session cookie survives logout

Confidence: 30
Recommendation: iterate`

func newTestManager(t *testing.T, responses []llm.CompletionResponse, reviewer Reviewer, opts Options) (*Manager, *llm.MockClient) {
	t.Helper()
	mock := llm.NewMockClient(responses, nil)
	opts.ModelName = "mock-model"
	opts.Reviewer = reviewer
	return NewManager(mock, opts), mock
}

func drainEvents(m *Manager) []proto.EventType {
	var types []proto.EventType
	for {
		select {
		case ev := <-m.Events():
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}

func indexOf(types []proto.EventType, want proto.EventType) int {
	for i, tp := range types {
		if tp == want {
			return i
		}
	}
	return -1
}

func TestCreateWorkflowStartsIdle(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, Options{})
	wf, err := m.CreateWorkflow()
	require.NoError(t, err)
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, proto.PhaseIdle, wf.Phase)
	assert.Equal(t, DefaultMaxIterations, wf.MaxIterations)
}

func TestUnknownWorkflow(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, Options{})
	_, err := m.Get("no-such-id")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestFullLifecycleAutoApprove(t *testing.T) {
	m, _ := newTestManager(t, []llm.CompletionResponse{planResponse("call_1")},
		&stubReviewer{narrative: approvingNarrative}, Options{AutoApprove: true})
	wf, err := m.CreateWorkflow()
	require.NoError(t, err)

	out, err := m.SubmitRequirement(context.Background(), wf.ID, "add a logout control")
	require.NoError(t, err)
	require.NotNil(t, out.Plan)
	assert.False(t, out.Suspended())

	got, err := m.Get(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, proto.PhasePlanning, got.Phase)
	assert.Equal(t, "Add a logout control", got.Plan.Title)

	require.NoError(t, m.ApprovePlan(wf.ID))

	result, err := m.SubmitReview(context.Background(), wf.ID, proto.ImplementationRef{
		Kind:       proto.ImplementationBranch,
		Identifier: "feature/logout",
	})
	require.NoError(t, err)
	assert.Equal(t, 95, result.Confidence)
	assert.Equal(t, plan.TierHigh, result.Tier)
	require.Len(t, result.CriteriaResults, 1)
	assert.True(t, result.CriteriaResults[0].Passed)

	decision, err := m.RouteDecision(wf.ID, result)
	require.NoError(t, err)
	assert.Equal(t, review.ActionApprove, decision.Action)

	got, err = m.Get(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseComplete, got.Phase)
	assert.Len(t, got.Reviews, 1)
}

func TestEventCausality(t *testing.T) {
	m, _ := newTestManager(t, []llm.CompletionResponse{planResponse("call_1")},
		&stubReviewer{narrative: approvingNarrative}, Options{AutoApprove: true})
	wf, err := m.CreateWorkflow()
	require.NoError(t, err)

	_, err = m.SubmitRequirement(context.Background(), wf.ID, "add a logout control")
	require.NoError(t, err)

	types := drainEvents(m)
	phaseIdx := indexOf(types, proto.EventPhaseChanged)
	planIdx := indexOf(types, proto.EventPlanReady)
	doneIdx := indexOf(types, proto.EventOperationComplete)
	require.GreaterOrEqual(t, phaseIdx, 0)
	require.GreaterOrEqual(t, planIdx, 0)
	require.GreaterOrEqual(t, doneIdx, 0)
	assert.Less(t, phaseIdx, planIdx)
	assert.Less(t, planIdx, doneIdx)
}

func TestApprovePlanWithoutPlan(t *testing.T) {
	m, _ := newTestManager(t, []llm.CompletionResponse{questionsResponse("call_q")}, nil, Options{})
	wf, err := m.CreateWorkflow()
	require.NoError(t, err)

	out, err := m.SubmitRequirement(context.Background(), wf.ID, "add a logout control")
	require.NoError(t, err)
	require.True(t, out.Suspended())

	err = m.ApprovePlan(wf.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubmitReviewWrongPhase(t *testing.T) {
	m, _ := newTestManager(t, nil, &stubReviewer{narrative: approvingNarrative}, Options{})
	wf, err := m.CreateWorkflow()
	require.NoError(t, err)

	_, err = m.SubmitReview(context.Background(), wf.ID, proto.ImplementationRef{
		Kind:       proto.ImplementationBranch,
		Identifier: "feature/logout",
	})
	assert.ErrorIs(t, err, conversation.ErrProtocolViolation)
}

func TestReviewerFailureLeavesPhase(t *testing.T) {
	m, _ := newTestManager(t, []llm.CompletionResponse{planResponse("call_1")},
		&stubReviewer{err: errors.New("reviewer unavailable")}, Options{})
	wf, err := m.CreateWorkflow()
	require.NoError(t, err)

	_, err = m.SubmitRequirement(context.Background(), wf.ID, "add a logout control")
	require.NoError(t, err)
	require.NoError(t, m.ApprovePlan(wf.ID))

	_, err = m.SubmitReview(context.Background(), wf.ID, proto.ImplementationRef{
		Kind:       proto.ImplementationBranch,
		Identifier: "feature/logout",
	})
	require.Error(t, err)

	got, err := m.Get(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseReviewing, got.Phase)
	assert.Empty(t, got.Reviews)
}

func TestIterateIncrementsAndReplans(t *testing.T) {
	m, _ := newTestManager(t, []llm.CompletionResponse{
		planResponse("call_1"),
		planResponse("call_2"),
	}, &stubReviewer{narrative: failingNarrative}, Options{MaxIterations: 2})
	wf, err := m.CreateWorkflow()
	require.NoError(t, err)

	_, err = m.SubmitRequirement(context.Background(), wf.ID, "add a logout control")
	require.NoError(t, err)
	require.NoError(t, m.ApprovePlan(wf.ID))

	result, err := m.SubmitReview(context.Background(), wf.ID, proto.ImplementationRef{
		Kind:       proto.ImplementationLocalDiff,
		Identifier: "workdir",
		Diff:       "--- a/header.go\n+++ b/header.go\n",
	})
	require.NoError(t, err)
	assert.Equal(t, plan.TierLow, result.Tier)

	decision, err := m.RouteDecision(wf.ID, result)
	require.NoError(t, err)
	require.Equal(t, review.ActionIterate, decision.Action)
	assert.Contains(t, decision.Feedback, "Session cookie survives logout")

	out, err := m.Iterate(context.Background(), wf.ID, decision.Feedback)
	require.NoError(t, err)
	require.NotNil(t, out.Plan)

	got, err := m.Get(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, proto.PhasePlanning, got.Phase)
	assert.Equal(t, 1, got.Iteration)
}

func TestIterateExhausted(t *testing.T) {
	m, _ := newTestManager(t, []llm.CompletionResponse{planResponse("call_1")},
		&stubReviewer{narrative: failingNarrative}, Options{MaxIterations: 1})
	wf, err := m.CreateWorkflow()
	require.NoError(t, err)

	_, err = m.SubmitRequirement(context.Background(), wf.ID, "add a logout control")
	require.NoError(t, err)
	require.NoError(t, m.ApprovePlan(wf.ID))

	result, err := m.SubmitReview(context.Background(), wf.ID, proto.ImplementationRef{
		Kind:       proto.ImplementationChangeRequest,
		Identifier: "42",
	})
	require.NoError(t, err)

	// Budget already spent: routing must escalate, and Iterate must refuse.
	e, err := m.entry(wf.ID)
	require.NoError(t, err)
	e.mu.Lock()
	e.wf.Iteration = 1
	e.mu.Unlock()

	decision, err := m.RouteDecision(wf.ID, result)
	require.NoError(t, err)
	assert.Equal(t, review.ActionEscalate, decision.Action)

	_, err = m.Iterate(context.Background(), wf.ID, []string{"retry"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
}

func TestResetReturnsToIdle(t *testing.T) {
	m, _ := newTestManager(t, []llm.CompletionResponse{planResponse("call_1")},
		&stubReviewer{narrative: approvingNarrative}, Options{})
	wf, err := m.CreateWorkflow()
	require.NoError(t, err)

	_, err = m.SubmitRequirement(context.Background(), wf.ID, "add a logout control")
	require.NoError(t, err)
	require.NoError(t, m.ApprovePlan(wf.ID))

	require.NoError(t, m.Reset(wf.ID))

	got, err := m.Get(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseIdle, got.Phase)
	assert.Nil(t, got.Plan)
	assert.Empty(t, got.Reviews)
	assert.Zero(t, got.Iteration)

	pending, err := m.Pending(wf.ID)
	require.NoError(t, err)
	assert.True(t, pending.IsEmpty())
}

func TestConcurrentResumeOnlyOneWins(t *testing.T) {
	m, _ := newTestManager(t, []llm.CompletionResponse{
		questionsResponse("call_q"),
		planResponse("call_p"),
	}, nil, Options{})
	wf, err := m.CreateWorkflow()
	require.NoError(t, err)

	out, err := m.SubmitRequirement(context.Background(), wf.ID, "add a logout control")
	require.NoError(t, err)
	require.True(t, out.Suspended())

	answers := map[string]string{"q1": "header"}
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.AnswerQuestions(context.Background(), wf.ID, answers)
		}(i)
	}
	wg.Wait()

	// Exactly one resume consumed the pending slot; the other saw it empty.
	var failures int
	for _, err := range errs {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, conversation.ErrProtocolViolation)
		}
	}
	assert.Equal(t, 1, failures)

	got, err := m.Get(wf.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Plan)
}

func TestRestoreResumesPendingConversation(t *testing.T) {
	store := NewMemoryStore()
	m1, _ := newTestManager(t, []llm.CompletionResponse{questionsResponse("call_q")}, nil, Options{Store: store})
	wf, err := m1.CreateWorkflow()
	require.NoError(t, err)

	out, err := m1.SubmitRequirement(context.Background(), wf.ID, "add a logout control")
	require.NoError(t, err)
	require.True(t, out.Suspended())

	// A second manager process picks the workflow up from the store.
	m2, _ := newTestManager(t, []llm.CompletionResponse{planResponse("call_p")}, nil, Options{Store: store})
	restored, err := m2.Restore(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, proto.PhasePlanning, restored.Phase)

	pending, err := m2.Pending(wf.ID)
	require.NoError(t, err)
	require.Equal(t, conversation.PendingAnswers, pending.Kind)
	assert.Equal(t, "call_q", pending.CallID)

	out, err = m2.AnswerQuestions(context.Background(), wf.ID, map[string]string{"q1": "header"})
	require.NoError(t, err)
	require.NotNil(t, out.Plan)
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, ValidTransitions.IsValidTransition(proto.PhaseIdle, proto.PhasePlanning))
	assert.True(t, ValidTransitions.IsValidTransition(proto.PhasePlanning, proto.PhasePlanning))
	assert.True(t, ValidTransitions.IsValidTransition(proto.PhaseReviewing, proto.PhaseComplete))
	assert.False(t, ValidTransitions.IsValidTransition(proto.PhaseIdle, proto.PhaseReviewing))
	assert.False(t, ValidTransitions.IsValidTransition(proto.PhaseComplete, proto.PhasePlanning))
}

func TestManagerRecordsTokenUsage(t *testing.T) {
	recorder := metrics.NewRecorder()
	resp := planResponse("call_1")
	resp.Usage = llm.TokenUsage{PromptTokens: 120, CompletionTokens: 40}
	m, _ := newTestManager(t, []llm.CompletionResponse{resp}, nil, Options{Metrics: recorder})

	wf, err := m.CreateWorkflow()
	require.NoError(t, err)
	_, err = m.SubmitRequirement(context.Background(), wf.ID, "add a logout control")
	require.NoError(t, err)

	// One prompt and one completion series labeled with this workflow.
	n, err := testutil.GatherAndCount(recorder.Registry(), "negotiation_tokens_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
