// Package proto defines the shared protocol types exchanged between the
// workflow core and its transport-layer collaborator: workflow phases,
// typed progress events, and implementation descriptors for review.
package proto

import (
	"fmt"
	"time"
)

// Phase is the outer workflow lifecycle state.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePlanning  Phase = "planning"
	PhaseReviewing Phase = "reviewing"
	PhaseComplete  Phase = "complete"
)

// IsValid reports whether the phase is one of the defined lifecycle states.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseIdle, PhasePlanning, PhaseReviewing, PhaseComplete:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the phase admits no further transitions.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete
}

// EventType identifies a progress event emitted by a mutating operation.
type EventType string

const (
	EventReasoningUpdate   EventType = "reasoning-update"
	EventRawOutputChunk    EventType = "raw-output-chunk"
	EventQuestionsPosted   EventType = "questions-posted"
	EventTemplateProposed  EventType = "template-proposed"
	EventPlanReady         EventType = "plan-ready"
	EventReviewReady       EventType = "review-ready"
	EventPhaseChanged      EventType = "phase-changed"
	EventError             EventType = "error"
	EventOperationComplete EventType = "operation-complete"
)

// Event is one typed progress notification. Emission order matches logical
// causality: a plan-ready event always follows the questions-posted and
// template-proposed events it resolves.
type Event struct {
	WorkflowID string    `json:"workflow_id"`
	Type       EventType `json:"type"`
	Payload    any       `json:"payload,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEvent creates a progress event stamped with the current UTC time.
func NewEvent(workflowID string, eventType EventType, payload any) Event {
	return Event{
		WorkflowID: workflowID,
		Type:       eventType,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
}

// PhaseChange is the payload of a phase-changed event.
type PhaseChange struct {
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

// ImplementationKind classifies what an ImplementationRef points at.
type ImplementationKind string

const (
	ImplementationChangeRequest ImplementationKind = "change-request"
	ImplementationBranch        ImplementationKind = "branch"
	ImplementationLocalDiff     ImplementationKind = "local-diff"
)

// ImplementationRef describes the implementation being submitted for review.
type ImplementationRef struct {
	Kind       ImplementationKind `json:"kind"`
	Identifier string             `json:"identifier"`
	Diff       string             `json:"diff,omitempty"`
	Files      []string           `json:"files,omitempty"`
}

// Validate checks the descriptor's kind and identifier.
func (r *ImplementationRef) Validate() error {
	switch r.Kind {
	case ImplementationChangeRequest, ImplementationBranch, ImplementationLocalDiff:
	default:
		return fmt.Errorf("unknown implementation kind %q", r.Kind)
	}
	if r.Identifier == "" {
		return fmt.Errorf("implementation identifier is required")
	}
	return nil
}
