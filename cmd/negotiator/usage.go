package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"negotiator/pkg/metrics"
)

//nolint:gochecknoglobals // cobra command tree
var (
	prometheusURL string

	usageCmd = &cobra.Command{
		Use:   "usage <workflow-id>",
		Short: "Show aggregated token usage and routing counts for a workflow",
		Args:  cobra.ExactArgs(1),
		RunE:  runUsage,
	}
)

//nolint:gochecknoinits // cobra flag and command registration
func init() {
	usageCmd.Flags().StringVar(&prometheusURL, "prometheus-url", "http://localhost:9091",
		"Prometheus server scraping the negotiator metrics endpoint")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	svc, err := metrics.NewQueryService(prometheusURL)
	if err != nil {
		return err
	}

	usage, err := svc.GetWorkflowUsage(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("📊 workflow %s: %d prompt + %d completion = %d tokens\n",
		usage.WorkflowID, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)

	counts, err := svc.GetRoutingCounts(cmd.Context())
	if err != nil {
		return err
	}
	for _, action := range []string{"approve", "iterate", "human-quick-review", "escalate"} {
		if n, ok := counts[action]; ok {
			fmt.Printf("🚦 %s: %d\n", action, n)
		}
	}
	return nil
}
