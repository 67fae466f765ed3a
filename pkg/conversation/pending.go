package conversation

import (
	"negotiator/pkg/plan"
	"negotiator/pkg/tools"
)

// PendingKind discriminates the pending-call union.
type PendingKind string

const (
	// PendingNone means no structured call is awaiting a result.
	PendingNone PendingKind = "none"
	// PendingAnswers means an ask_questions call is awaiting answers.
	PendingAnswers PendingKind = "awaiting-answers"
	// PendingTemplate means a propose_template call is awaiting accept/reject.
	PendingTemplate PendingKind = "awaiting-template-decision"
)

// PendingCall is the tagged union holding at most one unresolved structured
// call. The protocol is strictly sequential: the slot always corresponds to
// the last structured call the agent made, or is empty.
type PendingCall struct {
	Kind      PendingKind      `json:"kind"`
	CallID    string           `json:"call_id,omitempty"`
	Questions []tools.Question `json:"questions,omitempty"`
	Template  *plan.Template   `json:"template,omitempty"`
}

// NoPending is the empty slot.
func NoPending() PendingCall {
	return PendingCall{Kind: PendingNone}
}

// PendingQuestionSet marks an ask_questions call as unresolved.
func PendingQuestionSet(callID string, questions []tools.Question) PendingCall {
	return PendingCall{Kind: PendingAnswers, CallID: callID, Questions: questions}
}

// PendingTemplateDecision marks a propose_template call as unresolved.
func PendingTemplateDecision(callID string, tmpl plan.Template) PendingCall {
	return PendingCall{Kind: PendingTemplate, CallID: callID, Template: &tmpl}
}

// IsEmpty reports whether no structured call is pending.
func (p PendingCall) IsEmpty() bool {
	return p.Kind == PendingNone || p.Kind == ""
}
