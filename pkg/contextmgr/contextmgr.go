// Package contextmgr manages negotiation transcripts: role-tagged messages,
// token counting and compaction, and conversion to completion requests.
package contextmgr

import (
	"encoding/json"
	"fmt"
	"strings"

	"negotiator/pkg/llm"
)

// Transcript roles. Tool calls and results are flattened into text on the
// assistant and user roles respectively, so every provider client sees a
// plain alternating conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Default limits used when no model configuration is supplied.
const (
	DefaultMaxContextTokens = 128000
	DefaultMaxReplyTokens   = 8192
	DefaultCompactionBuffer = 2000
)

// Message is a single transcript entry.
type Message struct {
	Role    string
	Content string
}

// Limits describes the token budget for a model.
type Limits struct {
	MaxContextTokens int
	MaxReplyTokens   int
	CompactionBuffer int
}

// DefaultLimits returns the fallback token budget.
func DefaultLimits() Limits {
	return Limits{
		MaxContextTokens: DefaultMaxContextTokens,
		MaxReplyTokens:   DefaultMaxReplyTokens,
		CompactionBuffer: DefaultCompactionBuffer,
	}
}

// ContextManager accumulates the negotiation transcript and keeps it within
// the model's token budget.
type ContextManager struct {
	messages  []Message
	counter   *TokenCounter
	limits    Limits
	modelName string
}

// NewContextManager creates a context manager with default limits.
func NewContextManager(modelName string) *ContextManager {
	counter, err := NewTokenCounter(modelName)
	if err != nil {
		counter = nil // CountTokens falls back to character estimation
	}
	return &ContextManager{
		messages:  make([]Message, 0),
		counter:   counter,
		limits:    DefaultLimits(),
		modelName: modelName,
	}
}

// NewContextManagerWithLimits creates a context manager with an explicit token budget.
func NewContextManagerWithLimits(modelName string, limits Limits) *ContextManager {
	cm := NewContextManager(modelName)
	cm.limits = limits
	return cm
}

// Limits returns the token budget in effect.
func (cm *ContextManager) Limits() Limits {
	return cm.limits
}

// AddUserMessage appends a user turn to the transcript.
func (cm *ContextManager) AddUserMessage(content string) {
	cm.messages = append(cm.messages, Message{Role: RoleUser, Content: content})
}

// AddAssistantMessage appends an assistant turn to the transcript.
func (cm *ContextManager) AddAssistantMessage(content string) {
	cm.messages = append(cm.messages, Message{Role: RoleAssistant, Content: content})
}

// AddToolCall records an assistant tool invocation as a flattened assistant turn.
func (cm *ContextManager) AddToolCall(call *llm.ToolCall) {
	args, err := json.Marshal(call.Parameters)
	if err != nil {
		args = []byte("{}")
	}
	cm.messages = append(cm.messages, Message{
		Role:    RoleAssistant,
		Content: fmt.Sprintf("[tool_call %s id=%s] %s", call.Name, call.ID, args),
	})
}

// AddToolResult records a tool result as a flattened user turn addressed to
// the originating call.
func (cm *ContextManager) AddToolResult(toolCallID, content string) {
	cm.messages = append(cm.messages, Message{
		Role:    RoleUser,
		Content: fmt.Sprintf("[tool_result id=%s] %s", toolCallID, content),
	})
}

// CountTokens returns the token count of the current transcript.
func (cm *ContextManager) CountTokens() int {
	total := 0
	for i := range cm.messages {
		total += cm.counter.CountTokens(cm.messages[i].Role) + cm.counter.CountTokens(cm.messages[i].Content)
	}
	return total
}

// ShouldCompact reports whether the transcript plus a maximal reply would
// exceed the context budget.
func (cm *ContextManager) ShouldCompact() bool {
	return cm.CountTokens()+cm.limits.MaxReplyTokens+cm.limits.CompactionBuffer > cm.limits.MaxContextTokens
}

// CompactIfNeeded drops the oldest turns until the transcript fits the
// budget. The first message is preserved because it anchors the negotiation
// (the original requirement statement).
func (cm *ContextManager) CompactIfNeeded() {
	if !cm.ShouldCompact() {
		return
	}

	target := cm.limits.MaxContextTokens - cm.limits.MaxReplyTokens - cm.limits.CompactionBuffer
	for cm.CountTokens() > target && len(cm.messages) > 2 {
		cm.messages = append(cm.messages[:1], cm.messages[2:]...)
	}
}

// ToCompletionMessages renders the transcript as a completion request message
// list, with the system prompt first.
func (cm *ContextManager) ToCompletionMessages(systemPrompt string) []llm.CompletionMessage {
	out := make([]llm.CompletionMessage, 0, len(cm.messages)+1)
	if systemPrompt != "" {
		out = append(out, llm.NewSystemMessage(systemPrompt))
	}
	for i := range cm.messages {
		msg := &cm.messages[i]
		switch msg.Role {
		case RoleAssistant:
			out = append(out, llm.NewAssistantMessage(msg.Content))
		default:
			out = append(out, llm.NewUserMessage(msg.Content))
		}
	}
	return out
}

// Messages returns a copy of the transcript.
func (cm *ContextManager) Messages() []Message {
	result := make([]Message, len(cm.messages))
	copy(result, cm.messages)
	return result
}

// Restore replaces the transcript with a checkpoint previously taken via
// Messages. Used to roll a failed operation back to its pre-mutation state.
func (cm *ContextManager) Restore(messages []Message) {
	cm.messages = make([]Message, len(messages))
	copy(cm.messages, messages)
}

// MessageCount returns the number of transcript entries.
func (cm *ContextManager) MessageCount() int {
	return len(cm.messages)
}

// Clear removes all transcript entries.
func (cm *ContextManager) Clear() {
	cm.messages = cm.messages[:0]
}

// Summary returns a one-line description of the transcript state.
func (cm *ContextManager) Summary() string {
	if len(cm.messages) == 0 {
		return "empty transcript"
	}

	roleCounts := make(map[string]int)
	for i := range cm.messages {
		roleCounts[cm.messages[i].Role]++
	}
	var parts []string
	for _, role := range []string{RoleUser, RoleAssistant} {
		if n := roleCounts[role]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", role, n))
		}
	}

	return fmt.Sprintf("%d messages (%d tokens) - %s",
		len(cm.messages), cm.CountTokens(), strings.Join(parts, ", "))
}
