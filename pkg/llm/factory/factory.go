// Package factory constructs provider-backed llm.Client values. It sits above
// the llm leaf package so the provider implementations can depend on the
// client interface without forming a cycle.
package factory

import (
	"fmt"
	"strings"

	"negotiator/pkg/llm"
	"negotiator/pkg/llm/internal/anthropic"
	"negotiator/pkg/llm/internal/google"
	"negotiator/pkg/llm/internal/ollama"
	"negotiator/pkg/llm/internal/openaiofficial"
	"negotiator/pkg/logx"
)

// Provider identifiers for model routing.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// DefaultOllamaHost is used when no BaseURL is configured for a local model.
const DefaultOllamaHost = "http://localhost:11434"

// InferProvider determines the provider from a model name prefix.
// Unknown prefixes are treated as local Ollama models.
func InferProvider(modelName string) string {
	name := strings.ToLower(modelName)
	switch {
	case strings.HasPrefix(name, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(name, "gpt"), strings.HasPrefix(name, "o1"),
		strings.HasPrefix(name, "o3"), strings.HasPrefix(name, "o4"):
		return ProviderOpenAI
	case strings.HasPrefix(name, "gemini"):
		return ProviderGoogle
	default:
		return ProviderOllama
	}
}

// NewClient creates a retry-wrapped client for the given model.
// Hosted providers require an API key; Ollama uses cfg.BaseURL or the
// default localhost endpoint.
func NewClient(cfg *llm.Config, logger *logx.Logger) (llm.Client, error) {
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	provider := InferProvider(cfg.ModelName)

	var rawClient llm.Client
	switch provider {
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("API key is required for provider %s", provider)
		}
		rawClient = anthropic.New(cfg.APIKey, cfg.ModelName)
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("API key is required for provider %s", provider)
		}
		rawClient = openaiofficial.New(cfg.APIKey, cfg.ModelName)
	case ProviderGoogle:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("API key is required for provider %s", provider)
		}
		rawClient = google.New(cfg.APIKey, cfg.ModelName)
	case ProviderOllama:
		host := cfg.BaseURL
		if host == "" {
			host = DefaultOllamaHost
		}
		rawClient = ollama.New(host, cfg.ModelName)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	if logger != nil {
		logger.Info("created %s client for model %s", provider, cfg.ModelName)
	}

	return llm.NewRetryableClient(rawClient), nil
}
