// Package conversation drives one resumable multi-turn exchange with the
// agent per workflow. It owns the transcript and the pending structured call,
// and guarantees that the state visible to the human always corresponds to
// the last unresolved structured call the agent made.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"negotiator/pkg/config"
	"negotiator/pkg/contextmgr"
	"negotiator/pkg/llm"
	"negotiator/pkg/logx"
	"negotiator/pkg/plan"
	"negotiator/pkg/proto"
	"negotiator/pkg/tools"
)

// MaxTextRetries bounds the corrective loop for responses that carry free
// text but no structured action.
const MaxTextRetries = 3

const systemPrompt = `You are a planning agent negotiating an implementation plan with a human.
On every turn you must use exactly one of your three tools:
- ask_questions when the requirement is ambiguous and you need clarification
- propose_template when you are ready to classify the work but not yet plan it
- submit_plan when you have enough information to emit the final task breakdown
Never answer with plain text alone.`

const correctiveInstruction = `Your previous response contained no tool call. You must respond using exactly one of the ask_questions, propose_template or submit_plan tools.`

// Outcome is the result of one engine cycle: either a finished plan, or the
// pending request the caller must resolve before resuming.
type Outcome struct {
	Plan      *plan.Plan
	Questions []tools.Question
	Template  *plan.Template
	Content   string
	// Usage totals the tokens billed across every agent call the cycle made,
	// corrective retries included.
	Usage llm.TokenUsage
}

// Suspended reports whether the cycle ended awaiting human input.
func (o *Outcome) Suspended() bool {
	return o.Plan == nil
}

// EventSink receives typed progress events in causal order.
type EventSink func(eventType proto.EventType, payload any)

// Engine runs the structured negotiation for a single workflow. It is not
// safe for concurrent use; callers serialize operations per workflow.
type Engine struct {
	client   llm.Client
	ctxmgr   *contextmgr.ContextManager
	provider *tools.Provider
	logger   *logx.Logger
	onEvent  EventSink

	pending          PendingCall
	acceptedTemplate *plan.Template
}

// NewEngine creates an engine with a fresh transcript.
func NewEngine(client llm.Client, modelName string, logger *logx.Logger) *Engine {
	if logger == nil {
		logger = logx.NewLogger("conversation")
	}
	return &Engine{
		client:   client,
		ctxmgr:   newTranscript(modelName),
		provider: tools.NewProvider(tools.NegotiationTools),
		logger:   logger,
		pending:  NoPending(),
	}
}

// newTranscript sizes the transcript budget from the model registry.
// Unregistered models get the default limits.
func newTranscript(modelName string) *contextmgr.ContextManager {
	info, ok := config.GetModelInfo(modelName)
	if !ok {
		return contextmgr.NewContextManager(modelName)
	}
	return contextmgr.NewContextManagerWithLimits(modelName, contextmgr.Limits{
		MaxContextTokens: info.MaxContextTokens,
		MaxReplyTokens:   info.MaxOutputTokens,
		CompactionBuffer: contextmgr.DefaultCompactionBuffer,
	})
}

// SetEventSink attaches the progress-event consumer. A nil sink drops events.
func (e *Engine) SetEventSink(sink EventSink) {
	e.onEvent = sink
}

func (e *Engine) emit(eventType proto.EventType, payload any) {
	if e.onEvent != nil {
		e.onEvent(eventType, payload)
	}
}

// Pending returns the current pending-call slot.
func (e *Engine) Pending() PendingCall {
	return e.pending
}

// AcceptedTemplate returns the template the human accepted, if any.
func (e *Engine) AcceptedTemplate() *plan.Template {
	return e.acceptedTemplate
}

// Transcript exposes the transcript manager for persistence.
func (e *Engine) Transcript() *contextmgr.ContextManager {
	return e.ctxmgr
}

// checkpoint captures the engine state that public operations mutate before
// calling the agent, so a failed call can be rolled back and retried.
type checkpoint struct {
	pending  PendingCall
	template *plan.Template
	messages []contextmgr.Message
}

func (e *Engine) takeCheckpoint() checkpoint {
	return checkpoint{
		pending:  e.pending,
		template: e.acceptedTemplate,
		messages: e.ctxmgr.Messages(),
	}
}

// runCycleOrRollback runs one agent cycle and, on failure, restores the
// transcript, pending slot and accepted template to the given checkpoint so
// the caller can retry the same operation.
func (e *Engine) runCycleOrRollback(ctx context.Context, cp checkpoint) (*Outcome, error) {
	outcome, err := e.runCycle(ctx)
	if err != nil {
		e.pending = cp.pending
		e.acceptedTemplate = cp.template
		e.ctxmgr.Restore(cp.messages)
		return nil, err
	}
	return outcome, nil
}

// SubmitRequirement starts or continues planning from new user content.
func (e *Engine) SubmitRequirement(ctx context.Context, requirement string) (*Outcome, error) {
	if !e.pending.IsEmpty() {
		return nil, fmt.Errorf("%w: cannot submit a requirement while a %s call is pending", ErrProtocolViolation, e.pending.Kind)
	}
	cp := e.takeCheckpoint()
	e.ctxmgr.AddUserMessage(requirement)
	return e.runCycleOrRollback(ctx, cp)
}

// AnswerQuestions resumes a paused exchange by answering the pending
// question set. Every pending question must be answered and no unknown ids
// are accepted; a mismatch fails loudly and changes nothing.
func (e *Engine) AnswerQuestions(ctx context.Context, answers map[string]string) (*Outcome, error) {
	if e.pending.Kind != PendingAnswers {
		return nil, fmt.Errorf("%w: no question set is pending (slot is %s)", ErrProtocolViolation, e.pending.Kind)
	}

	known := make(map[string]bool, len(e.pending.Questions))
	for _, q := range e.pending.Questions {
		known[q.ID] = true
		if _, ok := answers[q.ID]; !ok {
			return nil, fmt.Errorf("%w: question %q was not answered", ErrProtocolViolation, q.ID)
		}
	}
	for id := range answers {
		if !known[id] {
			return nil, fmt.Errorf("%w: answer refers to unknown question %q", ErrProtocolViolation, id)
		}
	}

	payload, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answers: %w", err)
	}

	cp := e.takeCheckpoint()
	callID := e.pending.CallID
	e.pending = NoPending()
	e.ctxmgr.AddToolResult(callID, string(payload))

	return e.runCycleOrRollback(ctx, cp)
}

// AcceptTemplate resumes a paused exchange by accepting the proposed template.
func (e *Engine) AcceptTemplate(ctx context.Context) (*Outcome, error) {
	if e.pending.Kind != PendingTemplate {
		return nil, fmt.Errorf("%w: no template proposal is pending (slot is %s)", ErrProtocolViolation, e.pending.Kind)
	}

	cp := e.takeCheckpoint()
	accepted := *e.pending.Template
	callID := e.pending.CallID
	e.pending = NoPending()
	e.acceptedTemplate = &accepted
	e.ctxmgr.AddToolResult(callID, fmt.Sprintf(`{"decision":"accepted","template":%q}`, accepted.Name))

	return e.runCycleOrRollback(ctx, cp)
}

// RejectTemplate resumes a paused exchange by rejecting the proposal with
// feedback for the agent.
func (e *Engine) RejectTemplate(ctx context.Context, feedback string) (*Outcome, error) {
	if e.pending.Kind != PendingTemplate {
		return nil, fmt.Errorf("%w: no template proposal is pending (slot is %s)", ErrProtocolViolation, e.pending.Kind)
	}

	payload, err := json.Marshal(map[string]string{"decision": "rejected", "feedback": feedback})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rejection: %w", err)
	}

	cp := e.takeCheckpoint()
	callID := e.pending.CallID
	e.pending = NoPending()
	e.ctxmgr.AddToolResult(callID, string(payload))

	return e.runCycleOrRollback(ctx, cp)
}

// Refine re-enters the cycle with human feedback on an already-emitted plan.
// No structured call is outstanding at that point, so this is a plain user
// turn, not a resume.
func (e *Engine) Refine(ctx context.Context, feedback string) (*Outcome, error) {
	if !e.pending.IsEmpty() {
		return nil, fmt.Errorf("%w: cannot refine while a %s call is pending", ErrProtocolViolation, e.pending.Kind)
	}
	cp := e.takeCheckpoint()
	e.ctxmgr.AddUserMessage(fmt.Sprintf("Refinement feedback on the current plan:\n%s", feedback))
	return e.runCycleOrRollback(ctx, cp)
}

// Iterate re-enters the cycle with the issues from a low-confidence review.
func (e *Engine) Iterate(ctx context.Context, issues []string) (*Outcome, error) {
	if !e.pending.IsEmpty() {
		return nil, fmt.Errorf("%w: cannot iterate while a %s call is pending", ErrProtocolViolation, e.pending.Kind)
	}

	msg := "The implementation review failed with low confidence. Revise the plan to address these issues:\n"
	for i, issue := range issues {
		msg += fmt.Sprintf("%d. %s\n", i+1, issue)
	}
	cp := e.takeCheckpoint()
	e.ctxmgr.AddUserMessage(msg)
	return e.runCycleOrRollback(ctx, cp)
}

// Reset discards the conversation state entirely.
func (e *Engine) Reset() {
	e.ctxmgr.Clear()
	e.pending = NoPending()
	e.acceptedTemplate = nil
}

// runCycle invokes the agent with the full transcript and the three action
// schemas, then dispatches on the structured call in the response. Free-text
// responses get a corrective instruction and a bounded retry. Public
// operations wrap this with runCycleOrRollback so a failed agent call leaves
// the transcript and pending slot exactly as they were before the operation.
func (e *Engine) runCycle(ctx context.Context) (*Outcome, error) {
	var usage llm.TokenUsage
	for attempt := 0; attempt <= MaxTextRetries; attempt++ {
		e.ctxmgr.CompactIfNeeded()

		req := llm.NewCompletionRequest(e.ctxmgr.ToCompletionMessages(systemPrompt))
		req.Tools = e.provider.Definitions()
		req.ToolChoice = "any"

		e.logger.Info("🔄 Invoking agent '%s' with %d messages, %d tools (attempt %d)",
			e.client.GetModelName(), len(req.Messages), len(req.Tools), attempt+1)

		start := time.Now()
		resp, err := e.client.Complete(ctx, req)
		duration := time.Since(start)
		if err != nil {
			e.logger.Error("❌ Agent call failed after %.3gs: %v", duration.Seconds(), err)
			return nil, fmt.Errorf("agent invocation failed: %w", err)
		}
		e.logger.Info("✅ Agent responded in %.3gs: %d chars, %d tool calls",
			duration.Seconds(), len(resp.Content), len(resp.ToolCalls))
		usage.Add(resp.Usage)

		if resp.Content != "" {
			e.emit(proto.EventRawOutputChunk, resp.Content)
		}

		if len(resp.ToolCalls) == 0 {
			// Free text only. Append it for continuity, demand a structured
			// action, and go around again.
			e.ctxmgr.AddAssistantMessage(resp.Content)
			e.emit(proto.EventReasoningUpdate, resp.Content)
			e.ctxmgr.AddUserMessage(correctiveInstruction)
			continue
		}

		outcome, handled, err := e.dispatch(ctx, &resp)
		if err != nil {
			return nil, err
		}
		if handled {
			outcome.Usage = usage
			return outcome, nil
		}
		// Malformed structured call: the corrective result is already in the
		// transcript, retry.
	}

	return nil, fmt.Errorf("%w (ceiling %d)", ErrTextRetriesExceeded, MaxTextRetries)
}

// dispatch handles the first recognized structured call in the response.
// It returns handled=false when the call was malformed and the cycle should
// retry with the validation error placed in the transcript.
func (e *Engine) dispatch(ctx context.Context, resp *llm.CompletionResponse) (*Outcome, bool, error) {
	call := &resp.ToolCalls[0]

	tool, err := e.provider.Get(call.Name)
	if err != nil {
		e.logger.Warn("Agent called unknown tool %q", call.Name)
		e.ctxmgr.AddToolCall(call)
		e.ctxmgr.AddToolResult(call.ID, fmt.Sprintf("unknown tool %q; use ask_questions, propose_template or submit_plan", call.Name))
		return nil, false, nil
	}

	result, err := tool.Exec(ctx, call.Parameters)
	if err != nil {
		e.logger.Warn("Tool %s rejected arguments: %v", call.Name, err)
		e.ctxmgr.AddToolCall(call)
		e.ctxmgr.AddToolResult(call.ID, fmt.Sprintf("invalid %s call: %v", call.Name, err))
		return nil, false, nil
	}

	// Append the raw structured call to the transcript for continuity before
	// recording any pending state.
	e.ctxmgr.AddToolCall(call)

	switch call.Name {
	case tools.ToolAskQuestions:
		questions := result.([]tools.Question)
		e.pending = PendingQuestionSet(call.ID, questions)
		e.emit(proto.EventQuestionsPosted, questions)
		e.logger.Info("🎯 Agent asked %d clarifying questions", len(questions))
		return &Outcome{Questions: questions, Content: resp.Content}, true, nil

	case tools.ToolProposeTemplate:
		proposal := result.(tools.TemplateProposal)
		tmpl := plan.Template{
			Category:    proposal.Category,
			Name:        proposal.Name,
			Description: proposal.Description,
			Rationale:   proposal.Rationale,
		}
		e.pending = PendingTemplateDecision(call.ID, tmpl)
		e.emit(proto.EventTemplateProposed, tmpl)
		e.logger.Info("🎯 Agent proposed template %q (%s)", tmpl.Name, tmpl.Category)
		return &Outcome{Template: &tmpl, Content: resp.Content}, true, nil

	case tools.ToolSubmitPlan:
		raw := result.(map[string]any)
		tmpl := plan.GenericTemplate()
		if e.acceptedTemplate != nil {
			tmpl = *e.acceptedTemplate
		}
		assembled, err := plan.Assemble(raw, tmpl)
		if err != nil {
			e.logger.Warn("Plan assembly rejected submit_plan call: %v", err)
			e.ctxmgr.AddToolResult(call.ID, fmt.Sprintf("invalid plan: %v", err))
			return nil, false, nil
		}
		e.ctxmgr.AddToolResult(call.ID, "plan accepted")
		e.pending = NoPending()
		e.emit(proto.EventPlanReady, assembled)
		e.logger.Info("🎯 Agent emitted plan %q with %d tasks", assembled.Title, len(assembled.Tasks))
		return &Outcome{Plan: assembled, Content: resp.Content}, true, nil

	default:
		// Provider allowlist makes this unreachable.
		return nil, false, fmt.Errorf("unexpected tool %q", call.Name)
	}
}
