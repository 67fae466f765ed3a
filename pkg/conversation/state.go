package conversation

import (
	"encoding/json"
	"fmt"

	"negotiator/pkg/plan"
)

// SerializedState is the engine's durable form: the transcript blob, the
// pending-call slot and the accepted template. The LLM client is not part of
// the state and is re-attached on restore.
type SerializedState struct {
	Transcript       json.RawMessage `json:"transcript"`
	Pending          PendingCall     `json:"pending"`
	AcceptedTemplate *plan.Template  `json:"accepted_template,omitempty"`
}

// MarshalState snapshots the engine for persistence.
func (e *Engine) MarshalState() ([]byte, error) {
	transcript, err := e.ctxmgr.Serialize()
	if err != nil {
		return nil, err
	}

	state := SerializedState{
		Transcript:       transcript,
		Pending:          e.pending,
		AcceptedTemplate: e.acceptedTemplate,
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	return data, nil
}

// RestoreState replaces the engine's transcript, pending slot and accepted
// template from a snapshot.
func (e *Engine) RestoreState(data []byte) error {
	var state SerializedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}

	if err := e.ctxmgr.Deserialize(state.Transcript); err != nil {
		return err
	}
	e.pending = state.Pending
	if e.pending.Kind == "" {
		e.pending = NoPending()
	}
	e.acceptedTemplate = state.AcceptedTemplate
	return nil
}
