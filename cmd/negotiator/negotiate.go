package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"negotiator/pkg/config"
	"negotiator/pkg/conversation"
	"negotiator/pkg/llm"
	"negotiator/pkg/llm/factory"
	"negotiator/pkg/logx"
	"negotiator/pkg/metrics"
	"negotiator/pkg/persistence"
	"negotiator/pkg/plan"
	"negotiator/pkg/proto"
	"negotiator/pkg/review"
	"negotiator/pkg/workflow"
)

//nolint:gochecknoglobals // cobra command tree
var negotiateCmd = &cobra.Command{
	Use:   "negotiate [requirement]",
	Short: "Run an interactive plan negotiation session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runNegotiate,
}

func runNegotiate(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	manager, cleanup, err := buildManager(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	wf, err := manager.CreateWorkflow()
	if err != nil {
		return err
	}
	fmt.Printf("🆕 workflow %s\n", wf.ID)

	reader := bufio.NewReader(cmd.InOrStdin())
	requirement := ""
	if len(args) > 0 {
		requirement = args[0]
	} else {
		requirement, err = prompt(reader, "Requirement> ")
		if err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	out, err := manager.SubmitRequirement(ctx, wf.ID, requirement)
	if err != nil {
		return err
	}

	for out.Suspended() {
		out, err = resolvePending(ctx, manager, wf.ID, reader)
		if err != nil {
			return err
		}
	}

	fmt.Println(plan.Render(out.Plan))
	return reviewLoop(ctx, manager, wf.ID, reader)
}

// resolvePending asks the user to resolve the workflow's pending structured
// call and resumes the negotiation.
func resolvePending(ctx context.Context, manager *workflow.Manager, id string, reader *bufio.Reader) (*conversation.Outcome, error) {
	pending, err := manager.Pending(id)
	if err != nil {
		return nil, err
	}

	switch pending.Kind {
	case conversation.PendingAnswers:
		answers := make(map[string]string, len(pending.Questions))
		for _, q := range pending.Questions {
			fmt.Printf("❓ %s\n", q.Text)
			for i, opt := range q.Options {
				fmt.Printf("   %d) %s\n", i+1, opt)
			}
			answer, err := prompt(reader, "Answer> ")
			if err != nil {
				return nil, err
			}
			answers[q.ID] = answer
		}
		return manager.AnswerQuestions(ctx, id, answers)

	case conversation.PendingTemplate:
		tmpl := pending.Template
		fmt.Printf("📋 proposed template: %s (%s)\n   %s\n   rationale: %s\n",
			tmpl.Name, tmpl.Category, tmpl.Description, tmpl.Rationale)
		choice, err := prompt(reader, "Accept? [y/N] ")
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(choice, "y") || strings.EqualFold(choice, "yes") {
			return manager.AcceptTemplate(ctx, id)
		}
		feedback, err := prompt(reader, "Feedback> ")
		if err != nil {
			return nil, err
		}
		return manager.RejectTemplate(ctx, id, feedback)

	default:
		return nil, fmt.Errorf("workflow %s has no pending call to resolve", id)
	}
}

// reviewLoop drives approve/refine and the review-routing cycle until the
// workflow completes or hands off to a human.
func reviewLoop(ctx context.Context, manager *workflow.Manager, id string, reader *bufio.Reader) error {
	for {
		choice, err := prompt(reader, "Plan ready. [a]pprove, [r]efine, [q]uit> ")
		if err != nil {
			return err
		}
		switch strings.ToLower(choice) {
		case "a", "approve":
			if err := manager.ApprovePlan(id); err != nil {
				return err
			}
			return runReview(ctx, manager, id, reader)
		case "r", "refine":
			feedback, err := prompt(reader, "Feedback> ")
			if err != nil {
				return err
			}
			out, err := manager.RefinePlan(ctx, id, feedback)
			if err != nil {
				return err
			}
			for out.Suspended() {
				if out, err = resolvePending(ctx, manager, id, reader); err != nil {
					return err
				}
			}
			fmt.Println(plan.Render(out.Plan))
		case "q", "quit":
			return nil
		default:
			fmt.Println("unrecognized choice")
		}
	}
}

func runReview(ctx context.Context, manager *workflow.Manager, id string, reader *bufio.Reader) error {
	kind, err := prompt(reader, "Implementation kind (change-request/branch/local-diff)> ")
	if err != nil {
		return err
	}
	identifier, err := prompt(reader, "Identifier> ")
	if err != nil {
		return err
	}

	result, err := manager.SubmitReview(ctx, id, proto.ImplementationRef{
		Kind:       proto.ImplementationKind(kind),
		Identifier: identifier,
	})
	if err != nil {
		return err
	}
	fmt.Printf("🔍 confidence %d (%s), recommendation %s\n", result.Confidence, result.Tier, result.Recommendation)
	for _, issue := range result.Issues {
		fmt.Printf("   - %s\n", issue)
	}

	decision, err := manager.RouteDecision(id, result)
	if err != nil {
		return err
	}
	fmt.Printf("🚦 %s: %s\n", decision.Action, decision.Reason)

	if decision.Action == review.ActionIterate {
		out, err := manager.Iterate(ctx, id, decision.Feedback)
		if err != nil {
			return err
		}
		for out.Suspended() {
			if out, err = resolvePending(ctx, manager, id, reader); err != nil {
				return err
			}
		}
		fmt.Println(plan.Render(out.Plan))
		return reviewLoop(ctx, manager, id, reader)
	}
	return nil
}

// newModelClient builds a retry-wrapped client for one model, resolving the
// provider and its API key from the model name.
func newModelClient(modelName, ollamaHost string, logger *logx.Logger) (llm.Client, error) {
	provider := factory.InferProvider(modelName)
	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, err
	}
	return factory.NewClient(&llm.Config{
		ModelName: modelName,
		APIKey:    apiKey,
		BaseURL:   ollamaHost,
	}, logger)
}

// buildManager assembles the LLM client, store, and workflow manager from
// the loaded configuration.
func buildManager(cfg config.Config) (*workflow.Manager, func(), error) {
	client, err := newModelClient(cfg.ModelName, cfg.OllamaHost, logx.NewLogger("negotiator"))
	if err != nil {
		return nil, nil, err
	}

	var reviewer workflow.Reviewer
	if cfg.ReviewModelName != "" && cfg.ReviewModelName != cfg.ModelName {
		reviewClient, err := newModelClient(cfg.ReviewModelName, cfg.OllamaHost, logx.NewLogger("reviewer"))
		if err != nil {
			return nil, nil, err
		}
		reviewer = workflow.NewAgentReviewer(reviewClient)
	}

	var store workflow.Store
	cleanup := func() {}
	if cfg.DatabasePath != "" {
		sqlStore, err := persistence.Open(cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		store = sqlStore
		cleanup = func() { _ = sqlStore.Close() }
	}

	recorder := metrics.NewRecorder()
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, recorder)
	}

	manager := workflow.NewManager(client, workflow.Options{
		ModelName:     cfg.ModelName,
		MaxIterations: cfg.MaxIterations,
		AutoApprove:   cfg.AutoApprove,
		Store:         store,
		Reviewer:      reviewer,
		Metrics:       recorder,
	})
	go drainManagerEvents(manager)
	return manager, cleanup, nil
}

// serveMetrics exposes the Prometheus endpoint on addr.
func serveMetrics(addr string, recorder *metrics.Recorder) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil { //nolint:gosec // local exposition endpoint
		logx.NewLogger("metrics").Warn("⚠️ metrics endpoint stopped: %v", err)
	}
}

// drainManagerEvents surfaces reasoning updates so the session shows the
// agent thinking between prompts.
func drainManagerEvents(manager *workflow.Manager) {
	for ev := range manager.Events() {
		if ev.Type == proto.EventReasoningUpdate {
			if text, ok := ev.Payload.(string); ok && text != "" {
				fmt.Fprintf(os.Stderr, "💭 %s\n", text)
			}
		}
	}
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
