package workflow

import (
	"context"
	"fmt"
	"strings"

	"negotiator/pkg/llm"
	"negotiator/pkg/plan"
	"negotiator/pkg/proto"
)

// Reviewer produces a review narrative for an implementation against a plan.
// The narrative is scored leniently, so reviewers are free to write in prose.
type Reviewer interface {
	Review(ctx context.Context, p *plan.Plan, ref proto.ImplementationRef) (string, error)
}

const reviewerSystemPrompt = `You are reviewing an implementation against an agreed plan.
Write a review narrative containing:
- a "Confidence: N" line with N between 0 and 100
- a "Recommendation:" line (approve, request changes, iterate, or escalate)
- a "Summary" section
- a numbered list of issues, if any
- for each acceptance criterion, a line quoting the criterion and whether it passed`

// AgentReviewer asks an LLM client for the review narrative.
type AgentReviewer struct {
	client llm.Client
}

// NewAgentReviewer creates a reviewer backed by the given client.
func NewAgentReviewer(client llm.Client) *AgentReviewer {
	return &AgentReviewer{client: client}
}

// Review renders the plan and implementation reference into a single prompt
// and returns the model's narrative verbatim.
func (r *AgentReviewer) Review(ctx context.Context, p *plan.Plan, ref proto.ImplementationRef) (string, error) {
	var sb strings.Builder
	sb.WriteString("Review the following implementation against the plan below.\n\n")
	fmt.Fprintf(&sb, "Implementation: %s %s\n", ref.Kind, ref.Identifier)
	if len(ref.Files) > 0 {
		fmt.Fprintf(&sb, "Files changed: %s\n", strings.Join(ref.Files, ", "))
	}
	if ref.Diff != "" {
		sb.WriteString("\nDiff:\n")
		sb.WriteString(ref.Diff)
		sb.WriteString("\n")
	}
	sb.WriteString("\nPlan:\n")
	sb.WriteString(plan.Render(p))

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(reviewerSystemPrompt),
		llm.NewUserMessage(sb.String()),
	})
	resp, err := r.client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("review agent call failed: %w", err)
	}
	return resp.Content, nil
}
