package review

import (
	"fmt"

	"negotiator/pkg/plan"
)

// Action is the router's verdict.
type Action string

const (
	ActionApprove     Action = "approve"
	ActionHumanReview Action = "human-quick-review"
	ActionIterate     Action = "iterate"
	ActionEscalate    Action = "escalate"
)

// RouteInput carries everything the routing decision depends on.
type RouteInput struct {
	Result        *Result
	AutoApprove   bool
	Iteration     int
	MaxIterations int
}

// Decision is the routing outcome. Feedback carries the review's issue list
// forward when the action is iterate.
type Decision struct {
	Action   Action   `json:"action"`
	Reason   string   `json:"reason"`
	Feedback []string `json:"feedback,omitempty"`
}

// Route is a pure function from review outcome and iteration budget to the
// next action. An explicit escalate recommendation always escalates;
// otherwise the confidence tier decides, with the iteration budget gating
// whether low confidence iterates or escalates.
func Route(in RouteInput) Decision {
	if in.Result.Recommendation == RecommendEscalate {
		return Decision{
			Action: ActionEscalate,
			Reason: "review explicitly recommended escalation",
		}
	}

	switch in.Result.Tier {
	case plan.TierHigh:
		if in.AutoApprove {
			return Decision{
				Action: ActionApprove,
				Reason: fmt.Sprintf("high confidence (%d) with auto-approve enabled", in.Result.Confidence),
			}
		}
		return Decision{
			Action: ActionHumanReview,
			Reason: fmt.Sprintf("high confidence (%d) but auto-approve disabled", in.Result.Confidence),
		}

	case plan.TierMedium:
		return Decision{
			Action: ActionHumanReview,
			Reason: fmt.Sprintf("medium confidence (%d) requires a human quick-review", in.Result.Confidence),
		}

	default:
		if in.Iteration < in.MaxIterations {
			return Decision{
				Action:   ActionIterate,
				Reason:   fmt.Sprintf("low confidence (%d), iteration %d of %d", in.Result.Confidence, in.Iteration+1, in.MaxIterations),
				Feedback: in.Result.Issues,
			}
		}
		return Decision{
			Action: ActionEscalate,
			Reason: fmt.Sprintf("low confidence (%d) with iteration budget exhausted (%d)", in.Result.Confidence, in.MaxIterations),
		}
	}
}
