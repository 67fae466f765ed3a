package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func resultWith(confidence int, rec Recommendation, issues ...string) *Result {
	return &Result{
		Confidence:     confidence,
		Tier:           TierFor(confidence),
		Recommendation: rec,
		Issues:         issues,
	}
}

func TestRouteHighConfidence(t *testing.T) {
	// High tier with auto-approve disabled goes to a human, even when the
	// narrative itself recommended approval.
	decision := Route(RouteInput{
		Result:        resultWith(95, RecommendApprove),
		AutoApprove:   false,
		Iteration:     0,
		MaxIterations: 3,
	})
	assert.Equal(t, ActionHumanReview, decision.Action)

	decision = Route(RouteInput{
		Result:        resultWith(95, RecommendApprove),
		AutoApprove:   true,
		Iteration:     0,
		MaxIterations: 3,
	})
	assert.Equal(t, ActionApprove, decision.Action)
}

func TestRouteMediumConfidence(t *testing.T) {
	decision := Route(RouteInput{
		Result:        resultWith(75, RecommendApprove),
		AutoApprove:   true,
		Iteration:     0,
		MaxIterations: 3,
	})
	assert.Equal(t, ActionHumanReview, decision.Action)
}

func TestRouteLowConfidenceIterates(t *testing.T) {
	decision := Route(RouteInput{
		Result:        resultWith(40, RecommendIterate, "missing tests"),
		AutoApprove:   false,
		Iteration:     1,
		MaxIterations: 3,
	})
	assert.Equal(t, ActionIterate, decision.Action)
	assert.Equal(t, []string{"missing tests"}, decision.Feedback)
}

func TestRouteLowConfidenceExhaustedEscalates(t *testing.T) {
	decision := Route(RouteInput{
		Result:        resultWith(40, RecommendIterate),
		AutoApprove:   false,
		Iteration:     3,
		MaxIterations: 3,
	})
	assert.Equal(t, ActionEscalate, decision.Action)
}

func TestRouteExplicitEscalateOverridesTier(t *testing.T) {
	decision := Route(RouteInput{
		Result:        resultWith(98, RecommendEscalate),
		AutoApprove:   true,
		Iteration:     0,
		MaxIterations: 3,
	})
	assert.Equal(t, ActionEscalate, decision.Action)
}

func TestRouteIsPure(t *testing.T) {
	in := RouteInput{
		Result:        resultWith(40, RecommendIterate, "a", "b"),
		AutoApprove:   false,
		Iteration:     1,
		MaxIterations: 3,
	}
	assert.Equal(t, Route(in), Route(in))
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, "high", string(TierFor(90)))
	assert.Equal(t, "high", string(TierFor(100)))
	assert.Equal(t, "medium", string(TierFor(70)))
	assert.Equal(t, "medium", string(TierFor(89)))
	assert.Equal(t, "low", string(TierFor(69)))
	assert.Equal(t, "low", string(TierFor(0)))
}
