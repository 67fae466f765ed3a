// Package workflow implements the outer negotiation lifecycle: a state
// machine wrapping conversation engine runs, review scoring, and routing.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"negotiator/pkg/plan"
	"negotiator/pkg/proto"
	"negotiator/pkg/review"
)

const (
	// DefaultMaxIterations bounds review-driven planning iterations.
	DefaultMaxIterations = 3
)

// ErrInvalidTransition indicates a phase transition not allowed by the table.
var ErrInvalidTransition = errors.New("invalid phase transition")

// ErrWorkflowNotFound indicates an unknown workflow identifier.
var ErrWorkflowNotFound = errors.New("workflow not found")

// Workflow is one negotiation+review lifecycle. Mutated only through the
// Manager; callers receive copies.
type Workflow struct {
	ID            string          `json:"id"`
	Phase         proto.Phase     `json:"phase"`
	Requirement   string          `json:"requirement,omitempty"`
	Plan          *plan.Plan      `json:"plan,omitempty"`
	Reviews       []review.Result `json:"reviews,omitempty"`
	Iteration     int             `json:"iteration"`
	MaxIterations int             `json:"max_iterations"`
	AutoApprove   bool            `json:"auto_approve"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TransitionTable maps each phase to the phases reachable from it.
type TransitionTable map[proto.Phase][]proto.Phase

// ValidTransitions is the lifecycle table. Planning may self-transition for
// review-driven iteration; complete is terminal.
var ValidTransitions = TransitionTable{
	proto.PhaseIdle:      {proto.PhasePlanning},
	proto.PhasePlanning:  {proto.PhasePlanning, proto.PhaseReviewing},
	proto.PhaseReviewing: {proto.PhasePlanning, proto.PhaseComplete},
	proto.PhaseComplete:  {},
}

// IsValidTransition reports whether the table allows from -> to.
func (t TransitionTable) IsValidTransition(from, to proto.Phase) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves the workflow to a new phase after checking the table and
// the per-edge guards. Illegal transitions return a descriptive error, never
// a silent no-op.
func (w *Workflow) transition(to proto.Phase) error {
	if !ValidTransitions.IsValidTransition(w.Phase, to) {
		return fmt.Errorf("%w: workflow %s cannot move %s -> %s", ErrInvalidTransition, w.ID, w.Phase, to)
	}
	if to == proto.PhaseReviewing && w.Plan == nil {
		return fmt.Errorf("%w: workflow %s has no plan to review", ErrInvalidTransition, w.ID)
	}
	if to == proto.PhaseComplete && len(w.Reviews) == 0 {
		return fmt.Errorf("%w: workflow %s has no review on record", ErrInvalidTransition, w.ID)
	}
	w.Phase = to
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// IterationsExhausted reports whether the iteration budget is spent.
func (w *Workflow) IterationsExhausted() bool {
	return w.Iteration >= w.MaxIterations
}

// LatestReview returns the most recent review result, or nil.
func (w *Workflow) LatestReview() *review.Result {
	if len(w.Reviews) == 0 {
		return nil
	}
	return &w.Reviews[len(w.Reviews)-1]
}

// newWorkflow creates an idle workflow with a fresh identifier.
func newWorkflow(maxIterations int, autoApprove bool) *Workflow {
	now := time.Now().UTC()
	return &Workflow{
		ID:            uuid.New().String(),
		Phase:         proto.PhaseIdle,
		MaxIterations: maxIterations,
		AutoApprove:   autoApprove,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// clone returns a deep-enough copy safe to hand to callers.
func (w *Workflow) clone() *Workflow {
	cp := *w
	if w.Plan != nil {
		p := *w.Plan
		p.Tasks = append([]plan.Task(nil), w.Plan.Tasks...)
		cp.Plan = &p
	}
	cp.Reviews = append([]review.Result(nil), w.Reviews...)
	return &cp
}
