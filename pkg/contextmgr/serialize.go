package contextmgr

import (
	"encoding/json"
	"fmt"
)

// SerializedMessage is a transcript entry in persistence form.
type SerializedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SerializedContext is the full context manager state for persistence.
// Suspended workflows store this blob and restore it on resume.
type SerializedContext struct {
	ModelName string              `json:"model_name,omitempty"`
	Messages  []SerializedMessage `json:"messages"`
}

// Serialize converts the transcript state to JSON bytes.
func (cm *ContextManager) Serialize() ([]byte, error) {
	sc := SerializedContext{
		ModelName: cm.modelName,
		Messages:  make([]SerializedMessage, len(cm.messages)),
	}
	for i := range cm.messages {
		sc.Messages[i] = SerializedMessage{
			Role:    cm.messages[i].Role,
			Content: cm.messages[i].Content,
		}
	}

	data, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return data, nil
}

// Deserialize replaces the transcript state from JSON bytes.
// The token counter is not serialized; it is rebuilt from the model name.
func (cm *ContextManager) Deserialize(data []byte) error {
	var sc SerializedContext
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("failed to unmarshal transcript: %w", err)
	}

	if sc.ModelName != "" && sc.ModelName != cm.modelName {
		cm.modelName = sc.ModelName
		if counter, err := NewTokenCounter(sc.ModelName); err == nil {
			cm.counter = counter
		}
	}

	cm.messages = make([]Message, len(sc.Messages))
	for i := range sc.Messages {
		cm.messages[i] = Message{
			Role:    sc.Messages[i].Role,
			Content: sc.Messages[i].Content,
		}
	}
	return nil
}
