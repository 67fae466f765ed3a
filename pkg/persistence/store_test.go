package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"negotiator/pkg/plan"
	"negotiator/pkg/proto"
	"negotiator/pkg/review"
	"negotiator/pkg/workflow"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "negotiator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleWorkflow() *workflow.Workflow {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &workflow.Workflow{
		ID:            uuid.New().String(),
		Phase:         proto.PhaseReviewing,
		Requirement:   "add a logout control",
		MaxIterations: 3,
		AutoApprove:   true,
		Iteration:     1,
		CreatedAt:     now,
		UpdatedAt:     now,
		Plan: &plan.Plan{
			Title:      "Add a logout control",
			Repository: "example/webapp",
			Template:   plan.GenericTemplate(),
			Tasks: []plan.Task{{
				ID:                 1,
				Title:              "Add logout button to the header",
				HumanRole:          plan.HumanRoleVerifies,
				Risk:               plan.TierMedium,
				Complexity:         plan.TierMedium,
				DependsOn:          []int{},
				Status:             plan.StatusPending,
				AcceptanceCriteria: []string{"clicking logout ends the session"},
			}},
		},
		Reviews: []review.Result{{
			Confidence:     85,
			Tier:           plan.TierMedium,
			Recommendation: review.RecommendIterate,
			Summary:        "Mostly complete.",
			Issues:         []string{"session cookie survives logout"},
			CriteriaResults: []review.CriterionResult{{
				Criterion: "clicking logout ends the session",
				Passed:    false,
				Evidence:  "clicking logout ends the session: failed",
			}},
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		}},
	}
}

func TestSaveLoadWorkflowRoundTrip(t *testing.T) {
	store := openTestStore(t)
	wf := sampleWorkflow()
	require.NoError(t, store.SaveWorkflow(wf))

	got, err := store.LoadWorkflow(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, got.ID)
	assert.Equal(t, proto.PhaseReviewing, got.Phase)
	assert.Equal(t, wf.Requirement, got.Requirement)
	assert.True(t, got.AutoApprove)
	assert.Equal(t, 1, got.Iteration)
	require.NotNil(t, got.Plan)
	assert.Equal(t, wf.Plan.Title, got.Plan.Title)
	require.Len(t, got.Plan.Tasks, 1)
	assert.Equal(t, []string{"clicking logout ends the session"}, got.Plan.Tasks[0].AcceptanceCriteria)
	require.Len(t, got.Reviews, 1)
	assert.Equal(t, 85, got.Reviews[0].Confidence)
	assert.Equal(t, review.RecommendIterate, got.Reviews[0].Recommendation)
	require.Len(t, got.Reviews[0].CriteriaResults, 1)
	assert.False(t, got.Reviews[0].CriteriaResults[0].Passed)
}

func TestSaveWorkflowUpsert(t *testing.T) {
	store := openTestStore(t)
	wf := sampleWorkflow()
	require.NoError(t, store.SaveWorkflow(wf))

	wf.Phase = proto.PhaseComplete
	wf.Reviews = append(wf.Reviews, review.Result{
		Confidence:     95,
		Tier:           plan.TierHigh,
		Recommendation: review.RecommendApprove,
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, store.SaveWorkflow(wf))

	got, err := store.LoadWorkflow(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseComplete, got.Phase)
	require.Len(t, got.Reviews, 2)
	assert.Equal(t, 85, got.Reviews[0].Confidence)
	assert.Equal(t, 95, got.Reviews[1].Confidence)
}

func TestLoadWorkflowNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.LoadWorkflow("no-such-id")
	assert.ErrorIs(t, err, workflow.ErrWorkflowNotFound)
}

func TestWorkflowWithoutPlan(t *testing.T) {
	store := openTestStore(t)
	wf := sampleWorkflow()
	wf.Phase = proto.PhaseIdle
	wf.Plan = nil
	wf.Reviews = nil
	require.NoError(t, store.SaveWorkflow(wf))

	got, err := store.LoadWorkflow(wf.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Plan)
	assert.Empty(t, got.Reviews)
}

func TestListWorkflows(t *testing.T) {
	store := openTestStore(t)
	first := sampleWorkflow()
	second := sampleWorkflow()
	second.Plan = nil
	second.Reviews = nil
	second.Phase = proto.PhaseIdle
	require.NoError(t, store.SaveWorkflow(first))
	require.NoError(t, store.SaveWorkflow(second))

	all, err := store.ListWorkflows()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestConversationSnapshotLifecycle(t *testing.T) {
	store := openTestStore(t)
	wf := sampleWorkflow()
	require.NoError(t, store.SaveWorkflow(wf))

	snap, err := store.LoadConversation(wf.ID)
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, store.SaveConversation(wf.ID, []byte(`{"transcript":[]}`)))
	snap, err = store.LoadConversation(wf.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"transcript":[]}`, string(snap))

	require.NoError(t, store.SaveConversation(wf.ID, []byte(`{"transcript":[{"role":"user"}]}`)))
	snap, err = store.LoadConversation(wf.ID)
	require.NoError(t, err)
	assert.Contains(t, string(snap), "user")

	require.NoError(t, store.DeleteConversation(wf.ID))
	snap, err = store.LoadConversation(wf.ID)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSchemaIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "negotiator.db")
	store, err := Open(path)
	require.NoError(t, err)
	wf := sampleWorkflow()
	require.NoError(t, store.SaveWorkflow(wf))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.LoadWorkflow(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, got.ID)
}
