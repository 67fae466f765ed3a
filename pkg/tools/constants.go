package tools

// Tool name constants - use these instead of magic strings to prevent typos
// and enable compile-time checking.
const (
	// Negotiation tools - the three structured actions of the planning protocol.
	ToolAskQuestions    = "ask_questions"
	ToolProposeTemplate = "propose_template"
	ToolSubmitPlan      = "submit_plan"
)

// NegotiationTools lists the actions available during a planning exchange.
// The protocol is strictly sequential: the agent may invoke at most one of
// these per response, and clarification/template calls suspend the exchange
// until the human resolves them.
//
//nolint:gochecknoglobals // Static tool set, globally accessible by design
var NegotiationTools = []string{
	ToolAskQuestions,
	ToolProposeTemplate,
	ToolSubmitPlan,
}
