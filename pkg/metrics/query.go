package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// WorkflowUsage represents aggregated token usage for one workflow.
type WorkflowUsage struct {
	WorkflowID       string `json:"workflow_id"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
}

// QueryService queries aggregated negotiation metrics from Prometheus.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a query service against a Prometheus server.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// GetWorkflowUsage retrieves aggregated token usage for a workflow across
// all its agent calls.
func (q *QueryService) GetWorkflowUsage(ctx context.Context, workflowID string) (*WorkflowUsage, error) {
	usage := &WorkflowUsage{WorkflowID: workflowID}

	prompt, err := q.sumQuery(ctx, fmt.Sprintf(
		`sum(negotiation_tokens_total{workflow_id=%q, type="prompt"})`, workflowID))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	usage.PromptTokens = prompt

	completion, err := q.sumQuery(ctx, fmt.Sprintf(
		`sum(negotiation_tokens_total{workflow_id=%q, type="completion"})`, workflowID))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	usage.CompletionTokens = completion

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage, nil
}

// GetRoutingCounts returns the number of routing decisions per action.
func (q *QueryService) GetRoutingCounts(ctx context.Context) (map[string]int64, error) {
	result, _, err := q.queryAPI.Query(ctx, "sum by (action) (negotiation_routing_decisions_total)", time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query routing decisions: %w", err)
	}

	counts := make(map[string]int64)
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			if action, ok := sample.Metric["action"]; ok {
				counts[string(action)] = int64(sample.Value)
			}
		}
	}
	return counts, nil
}

func (q *QueryService) sumQuery(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}
