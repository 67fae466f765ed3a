package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"negotiator/pkg/conversation"
	"negotiator/pkg/llm"
	"negotiator/pkg/logx"
	"negotiator/pkg/metrics"
	"negotiator/pkg/proto"
	"negotiator/pkg/review"
)

const eventBufferSize = 256

// Options configures a Manager.
type Options struct {
	// ModelName selects the negotiation model. Required.
	ModelName string
	// MaxIterations bounds review-driven planning loops. Zero means
	// DefaultMaxIterations.
	MaxIterations int
	// AutoApprove lets high-confidence reviews approve without a human.
	AutoApprove bool
	// Store persists workflows and conversation snapshots. Nil means an
	// in-memory store.
	Store Store
	// Reviewer produces review narratives. Nil means an AgentReviewer on
	// the same client.
	Reviewer Reviewer
	// Metrics records instrumentation. Nil disables recording.
	Metrics *metrics.Recorder
}

// entry pairs a workflow with its conversation engine and a mutex that
// serializes all operations touching either.
type entry struct {
	mu     sync.Mutex
	wf     *Workflow
	engine *conversation.Engine
}

// Manager owns all workflows and is the only mutator of their state.
// Operations on distinct workflows proceed concurrently; operations on the
// same workflow are serialized per-key.
type Manager struct {
	client   llm.Client
	store    Store
	reviewer Reviewer
	logger   *logx.Logger
	recorder *metrics.Recorder
	opts     Options

	mu      sync.RWMutex
	entries map[string]*entry

	events chan proto.Event
}

// NewManager creates a workflow manager on the given client.
func NewManager(client llm.Client, opts Options) *Manager {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Reviewer == nil {
		opts.Reviewer = NewAgentReviewer(client)
	}
	return &Manager{
		client:   client,
		store:    opts.Store,
		reviewer: opts.Reviewer,
		logger:   logx.NewLogger("workflow"),
		recorder: opts.Metrics,
		opts:     opts,
		entries:  make(map[string]*entry),
		events:   make(chan proto.Event, eventBufferSize),
	}
}

// Events returns the progress event channel. Emission order matches logical
// causality; events are dropped with a warning when the consumer lags.
func (m *Manager) Events() <-chan proto.Event {
	return m.events
}

func (m *Manager) emit(workflowID string, eventType proto.EventType, payload any) {
	ev := proto.NewEvent(workflowID, eventType, payload)
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("⚠️ event channel full, dropping %s for workflow %s", eventType, workflowID)
	}
}

// CreateWorkflow starts a new idle workflow and returns a copy of its record.
func (m *Manager) CreateWorkflow() (*Workflow, error) {
	wf := newWorkflow(m.opts.MaxIterations, m.opts.AutoApprove)
	engine := conversation.NewEngine(m.client, m.opts.ModelName, logx.NewLogger("conversation-"+wf.ID[:8]))
	id := wf.ID
	engine.SetEventSink(func(eventType proto.EventType, payload any) {
		m.emit(id, eventType, payload)
	})

	m.mu.Lock()
	m.entries[wf.ID] = &entry{wf: wf, engine: engine}
	m.mu.Unlock()

	if err := m.store.SaveWorkflow(wf); err != nil {
		return nil, fmt.Errorf("failed to persist workflow %s: %w", wf.ID, err)
	}
	m.logger.Info("🆕 created workflow %s", wf.ID)
	return wf.clone(), nil
}

// Get returns a copy of the workflow record.
func (m *Manager) Get(id string) (*Workflow, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wf.clone(), nil
}

// Pending returns the workflow's pending structured call, if any.
func (m *Manager) Pending(id string) (conversation.PendingCall, error) {
	e, err := m.entry(id)
	if err != nil {
		return conversation.PendingCall{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.engine.Pending(), nil
}

func (m *Manager) entry(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return e, nil
}

// SubmitRequirement starts planning for a workflow with the given requirement
// text. The workflow moves to planning before the agent call; an agent
// failure leaves it there for the caller to retry.
func (m *Manager) SubmitRequirement(ctx context.Context, id, requirement string) (*conversation.Outcome, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.wf.Phase == proto.PhaseIdle {
		if err := m.changePhase(e.wf, proto.PhasePlanning); err != nil {
			return nil, err
		}
	}
	e.wf.Requirement = requirement
	m.logger.Info("📝 workflow %s received requirement (%d chars)", id, len(requirement))

	return m.runEngine(ctx, e, func() (*conversation.Outcome, error) {
		return e.engine.SubmitRequirement(ctx, requirement)
	})
}

// AnswerQuestions resumes a workflow suspended on a clarification set.
func (m *Manager) AnswerQuestions(ctx context.Context, id string, answers map[string]string) (*conversation.Outcome, error) {
	return m.resume(ctx, id, func(ctx context.Context, e *entry) (*conversation.Outcome, error) {
		return e.engine.AnswerQuestions(ctx, answers)
	})
}

// AcceptTemplate resumes a workflow suspended on a template proposal,
// accepting it.
func (m *Manager) AcceptTemplate(ctx context.Context, id string) (*conversation.Outcome, error) {
	return m.resume(ctx, id, func(ctx context.Context, e *entry) (*conversation.Outcome, error) {
		return e.engine.AcceptTemplate(ctx)
	})
}

// RejectTemplate resumes a workflow suspended on a template proposal,
// rejecting it with feedback.
func (m *Manager) RejectTemplate(ctx context.Context, id, feedback string) (*conversation.Outcome, error) {
	return m.resume(ctx, id, func(ctx context.Context, e *entry) (*conversation.Outcome, error) {
		return e.engine.RejectTemplate(ctx, feedback)
	})
}

// RefinePlan sends refinement feedback on the current plan back into the
// negotiation.
func (m *Manager) RefinePlan(ctx context.Context, id, feedback string) (*conversation.Outcome, error) {
	return m.resume(ctx, id, func(ctx context.Context, e *entry) (*conversation.Outcome, error) {
		return e.engine.Refine(ctx, feedback)
	})
}

func (m *Manager) resume(ctx context.Context, id string, op func(context.Context, *entry) (*conversation.Outcome, error)) (*conversation.Outcome, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.wf.Phase != proto.PhasePlanning {
		return nil, fmt.Errorf("%w: workflow %s is %s, not planning", conversation.ErrProtocolViolation, id, e.wf.Phase)
	}
	return m.runEngine(ctx, e, func() (*conversation.Outcome, error) {
		return op(ctx, e)
	})
}

// runEngine invokes one engine cycle and folds its outcome into the workflow
// record. Caller holds the entry lock.
func (m *Manager) runEngine(ctx context.Context, e *entry, op func() (*conversation.Outcome, error)) (*conversation.Outcome, error) {
	start := time.Now()
	out, err := op()
	if m.recorder != nil {
		m.recorder.ObserveAgentRequest(m.opts.ModelName, "negotiation", err == nil, time.Since(start))
	}
	if err != nil {
		m.emit(e.wf.ID, proto.EventError, err.Error())
		return nil, err
	}
	if m.recorder != nil && !out.Usage.IsZero() {
		m.recorder.ObserveTokens(m.opts.ModelName, e.wf.ID, out.Usage.PromptTokens, out.Usage.CompletionTokens)
	}
	if out.Plan != nil {
		e.wf.Plan = out.Plan
		m.logger.Info("✅ workflow %s produced plan %q with %d tasks", e.wf.ID, out.Plan.Title, len(out.Plan.Tasks))
	}
	m.persist(e)
	m.emit(e.wf.ID, proto.EventOperationComplete, nil)
	return out, nil
}

// ApprovePlan moves a planned workflow into the reviewing phase.
func (m *Manager) ApprovePlan(id string) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := m.changePhase(e.wf, proto.PhaseReviewing); err != nil {
		return err
	}
	m.persist(e)
	m.emit(e.wf.ID, proto.EventOperationComplete, nil)
	return nil
}

// SubmitReview asks the reviewer for a narrative about the implementation,
// scores it against the plan's acceptance criteria, and appends the result
// to the workflow's review history.
func (m *Manager) SubmitReview(ctx context.Context, id string, ref proto.ImplementationRef) (*review.Result, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.wf.Phase != proto.PhaseReviewing {
		return nil, fmt.Errorf("%w: workflow %s is %s, not reviewing", conversation.ErrProtocolViolation, id, e.wf.Phase)
	}
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("invalid implementation reference for workflow %s: %w", id, err)
	}

	narrative, err := m.reviewer.Review(ctx, e.wf.Plan, ref)
	if err != nil {
		m.emit(id, proto.EventError, err.Error())
		return nil, err
	}

	result := review.Score(narrative, e.wf.Plan.AcceptanceCriteria())
	e.wf.Reviews = append(e.wf.Reviews, result)
	if m.recorder != nil {
		m.recorder.ObserveReviewConfidence(string(result.Tier), result.Confidence)
	}
	m.persist(e)
	m.logger.Info("🔍 workflow %s reviewed %s %s: confidence %d (%s)", id, ref.Kind, ref.Identifier, result.Confidence, result.Tier)
	m.emit(id, proto.EventReviewReady, result)
	m.emit(id, proto.EventOperationComplete, nil)
	return &result, nil
}

// RouteDecision maps a review result to the next action. An approve decision
// completes the workflow; iterate is applied by a subsequent Iterate call.
func (m *Manager) RouteDecision(id string, result *review.Result) (review.Decision, error) {
	e, err := m.entry(id)
	if err != nil {
		return review.Decision{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	decision := review.Route(review.RouteInput{
		Result:        result,
		AutoApprove:   e.wf.AutoApprove,
		Iteration:     e.wf.Iteration,
		MaxIterations: e.wf.MaxIterations,
	})
	m.logger.Info("🚦 workflow %s routed to %s: %s", id, decision.Action, decision.Reason)
	if m.recorder != nil {
		m.recorder.ObserveRoutingDecision(string(decision.Action))
	}

	if decision.Action == review.ActionApprove {
		if err := m.changePhase(e.wf, proto.PhaseComplete); err != nil {
			return review.Decision{}, err
		}
		m.persist(e)
	}
	m.emit(id, proto.EventOperationComplete, nil)
	return decision, nil
}

// Iterate sends review issues back into planning and increments the
// iteration counter.
func (m *Manager) Iterate(ctx context.Context, id string, feedback []string) (*conversation.Outcome, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.wf.IterationsExhausted() {
		return nil, fmt.Errorf("workflow %s exhausted its %d iterations", id, e.wf.MaxIterations)
	}
	if err := m.changePhase(e.wf, proto.PhasePlanning); err != nil {
		return nil, err
	}
	e.wf.Iteration++
	m.logger.Info("🔄 workflow %s iterating (%d/%d)", id, e.wf.Iteration, e.wf.MaxIterations)

	return m.runEngine(ctx, e, func() (*conversation.Outcome, error) {
		return e.engine.Iterate(ctx, feedback)
	})
}

// Reset discards a workflow's conversation and review state, returning it to
// idle. The identifier and timestamps survive.
func (m *Manager) Reset(id string) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.wf.Phase
	e.engine.Reset()
	e.wf.Phase = proto.PhaseIdle
	e.wf.Requirement = ""
	e.wf.Plan = nil
	e.wf.Reviews = nil
	e.wf.Iteration = 0
	if err := m.store.DeleteConversation(id); err != nil {
		m.logger.Warn("⚠️ failed to delete conversation snapshot for %s: %v", id, err)
	}
	m.persist(e)
	m.logger.Info("🔁 workflow %s reset from %s", id, from)
	m.emit(id, proto.EventPhaseChanged, proto.PhaseChange{From: from, To: proto.PhaseIdle})
	m.emit(id, proto.EventOperationComplete, nil)
	return nil
}

// changePhase applies a transition and emits the phase-changed event.
func (m *Manager) changePhase(wf *Workflow, to proto.Phase) error {
	from := wf.Phase
	if err := wf.transition(to); err != nil {
		return err
	}
	m.logger.Info("🎯 workflow %s phase %s -> %s", wf.ID, from, to)
	if m.recorder != nil {
		m.recorder.ObservePhaseTransition(string(from), string(to))
	}
	m.emit(wf.ID, proto.EventPhaseChanged, proto.PhaseChange{From: from, To: to})
	return nil
}

// persist saves the workflow record and its conversation snapshot, logging
// rather than failing on storage errors. Negotiation state lives in memory;
// the store is a recovery aid.
func (m *Manager) persist(e *entry) {
	if err := m.store.SaveWorkflow(e.wf); err != nil {
		m.logger.Warn("⚠️ failed to persist workflow %s: %v", e.wf.ID, err)
	}
	snap, err := e.engine.MarshalState()
	if err != nil {
		m.logger.Warn("⚠️ failed to snapshot conversation for %s: %v", e.wf.ID, err)
		return
	}
	if err := m.store.SaveConversation(e.wf.ID, snap); err != nil {
		m.logger.Warn("⚠️ failed to persist conversation for %s: %v", e.wf.ID, err)
	}
}

// Restore rebuilds an in-memory entry for a persisted workflow, reloading
// its conversation snapshot when present.
func (m *Manager) Restore(id string) (*Workflow, error) {
	wf, err := m.store.LoadWorkflow(id)
	if err != nil {
		return nil, err
	}
	engine := conversation.NewEngine(m.client, m.opts.ModelName, logx.NewLogger("conversation-"+id[:8]))
	engine.SetEventSink(func(eventType proto.EventType, payload any) {
		m.emit(id, eventType, payload)
	})
	snap, err := m.store.LoadConversation(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation for %s: %w", id, err)
	}
	if snap != nil {
		if err := engine.RestoreState(snap); err != nil {
			return nil, fmt.Errorf("failed to restore conversation for %s: %w", id, err)
		}
	}

	m.mu.Lock()
	m.entries[id] = &entry{wf: wf, engine: engine}
	m.mu.Unlock()
	m.logger.Info("📂 restored workflow %s in phase %s", id, wf.Phase)
	return wf.clone(), nil
}
