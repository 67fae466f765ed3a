package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"negotiator/pkg/llm"
)

func TestInferProvider(t *testing.T) {
	tests := []struct {
		model    string
		provider string
	}{
		{"claude-sonnet-4-20250514", ProviderAnthropic},
		{"claude-3-5-haiku-latest", ProviderAnthropic},
		{"gpt-4o", ProviderOpenAI},
		{"o3-mini", ProviderOpenAI},
		{"o4-mini", ProviderOpenAI},
		{"gemini-2.5-pro", ProviderGoogle},
		{"llama3.3:70b", ProviderOllama},
		{"qwen2.5-coder", ProviderOllama},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.provider, InferProvider(tt.model))
		})
	}
}

func TestNewClientRequiresModelName(t *testing.T) {
	_, err := NewClient(&llm.Config{APIKey: "key"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model name")
}

func TestNewClientRequiresAPIKeyForHostedProviders(t *testing.T) {
	for _, model := range []string{"claude-sonnet-4-20250514", "gpt-4o", "gemini-2.5-pro"} {
		_, err := NewClient(&llm.Config{ModelName: model}, nil)
		require.Error(t, err, model)
		assert.Contains(t, err.Error(), "API key")
	}
}

func TestNewClientOllamaNeedsNoKey(t *testing.T) {
	client, err := NewClient(&llm.Config{ModelName: "llama3.3:70b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "llama3.3:70b", client.GetModelName())
}
