package contextmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"negotiator/pkg/llm"
)

func TestAddMessages(t *testing.T) {
	cm := NewContextManager("gpt-4o")

	cm.AddUserMessage("build a login page")
	cm.AddAssistantMessage("what auth provider?")

	msgs := cm.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, 2, cm.MessageCount())
}

func TestToolCallFlattening(t *testing.T) {
	cm := NewContextManager("gpt-4o")

	cm.AddToolCall(&llm.ToolCall{
		ID:         "call_1",
		Name:       "ask_questions",
		Parameters: map[string]any{"questions": []any{}},
	})
	cm.AddToolResult("call_1", `{"q1":"use oauth"}`)

	msgs := cm.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "ask_questions")
	assert.Contains(t, msgs[0].Content, "call_1")
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "call_1")
}

func TestToCompletionMessages(t *testing.T) {
	cm := NewContextManager("gpt-4o")
	cm.AddUserMessage("hello")
	cm.AddAssistantMessage("hi")

	out := cm.ToCompletionMessages("you are a planner")
	require.Len(t, out, 3)
	assert.Equal(t, llm.RoleSystem, out[0].Role)
	assert.Equal(t, llm.RoleUser, out[1].Role)
	assert.Equal(t, llm.RoleAssistant, out[2].Role)

	// No system entry when the prompt is empty
	assert.Len(t, cm.ToCompletionMessages(""), 2)
}

func TestCountTokensGrowsWithContent(t *testing.T) {
	cm := NewContextManager("gpt-4o")
	assert.Equal(t, 0, cm.CountTokens())

	cm.AddUserMessage("a short message")
	first := cm.CountTokens()
	assert.Positive(t, first)

	cm.AddAssistantMessage("a considerably longer reply with many more words in it")
	assert.Greater(t, cm.CountTokens(), first)
}

func TestCompactionPreservesAnchorMessage(t *testing.T) {
	cm := NewContextManagerWithLimits("gpt-4o", Limits{
		MaxContextTokens: 200,
		MaxReplyTokens:   50,
		CompactionBuffer: 20,
	})

	cm.AddUserMessage("original requirement: build the billing service")
	for i := 0; i < 30; i++ {
		cm.AddAssistantMessage("an intermediate negotiation turn with some tokens in it")
		cm.AddUserMessage("a human answer with some more tokens in it")
	}

	require.True(t, cm.ShouldCompact())
	cm.CompactIfNeeded()

	msgs := cm.Messages()
	assert.Less(t, len(msgs), 61)
	assert.Contains(t, msgs[0].Content, "original requirement")
	assert.LessOrEqual(t, cm.CountTokens(), 200-50-20)
}

func TestSerializeRoundTrip(t *testing.T) {
	cm := NewContextManager("claude-sonnet-4-20250514")
	cm.AddUserMessage("requirement")
	cm.AddToolCall(&llm.ToolCall{ID: "c1", Name: "submit_plan", Parameters: map[string]any{"title": "t"}})

	data, err := cm.Serialize()
	require.NoError(t, err)

	restored := NewContextManager("claude-sonnet-4-20250514")
	require.NoError(t, restored.Deserialize(data))

	assert.Equal(t, cm.Messages(), restored.Messages())
}

func TestSummary(t *testing.T) {
	cm := NewContextManager("gpt-4o")
	assert.Equal(t, "empty transcript", cm.Summary())

	cm.AddUserMessage("hello")
	cm.AddAssistantMessage("hi")
	summary := cm.Summary()
	assert.Contains(t, summary, "2 messages")
	assert.Contains(t, summary, "user: 1")
	assert.Contains(t, summary, "assistant: 1")
}
