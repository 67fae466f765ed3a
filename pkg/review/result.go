// Package review extracts a confidence judgment from a semi-structured
// review narrative and routes it, together with the iteration budget, to one
// of four follow-up actions.
package review

import (
	"time"

	"negotiator/pkg/plan"
)

// Confidence tier boundaries.
const (
	TierHighThreshold   = 90
	TierMediumThreshold = 70
)

// Recommendation is the action keyword extracted from the narrative.
type Recommendation string

const (
	RecommendApprove        Recommendation = "approve"
	RecommendRequestChanges Recommendation = "request-changes"
	RecommendIterate        Recommendation = "iterate"
	RecommendEscalate       Recommendation = "escalate"
)

// CriterionResult records one acceptance criterion's pass/fail with evidence.
type CriterionResult struct {
	Criterion string `json:"criterion"`
	Passed    bool   `json:"passed"`
	Evidence  string `json:"evidence,omitempty"`
}

// Result is one immutable review outcome, appended to the workflow history.
type Result struct {
	Confidence      int               `json:"confidence"`
	Tier            plan.Tier         `json:"tier"`
	CriteriaResults []CriterionResult `json:"criteria_results,omitempty"`
	Issues          []string          `json:"issues,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	Recommendation  Recommendation    `json:"recommendation"`
	CreatedAt       time.Time         `json:"created_at"`
}

// TierFor buckets a numeric confidence into high (>=90), medium (>=70) or low.
func TierFor(confidence int) plan.Tier {
	switch {
	case confidence >= TierHighThreshold:
		return plan.TierHigh
	case confidence >= TierMediumThreshold:
		return plan.TierMedium
	default:
		return plan.TierLow
	}
}
