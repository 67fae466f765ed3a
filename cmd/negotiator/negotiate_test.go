package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"negotiator/pkg/config"
	"negotiator/pkg/logx"
)

func TestNewModelClientResolvesOllamaWithoutKey(t *testing.T) {
	client, err := newModelClient("llama3.3:70b", "", logx.NewLogger("test"))
	require.NoError(t, err)
	assert.Equal(t, "llama3.3:70b", client.GetModelName())
}

func TestBuildManagerWiresSeparateReviewModel(t *testing.T) {
	cfg := config.Config{
		ModelName:       "llama3.3:70b",
		ReviewModelName: "qwen2.5-coder",
		MaxIterations:   2,
	}
	manager, cleanup, err := buildManager(cfg)
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, manager)
}
