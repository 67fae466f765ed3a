// Package config manages application configuration and secrets.
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"negotiator/pkg/logx"
)

// Global config instance with mutex protection.
//
//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config *Config
	logger *logx.Logger
	mu     sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// Config is the application configuration, loaded from a YAML file with
// defaults applied for absent fields.
type Config struct {
	// ModelName selects the negotiation model.
	ModelName string `yaml:"model_name"`
	// ReviewModelName selects the review model; empty means ModelName.
	ReviewModelName string `yaml:"review_model_name,omitempty"`
	// MaxIterations bounds review-driven planning loops per workflow.
	MaxIterations int `yaml:"max_iterations"`
	// AutoApprove lets high-confidence reviews approve without a human.
	AutoApprove bool `yaml:"auto_approve"`
	// DatabasePath locates the SQLite database. Empty disables persistence.
	DatabasePath string `yaml:"database_path,omitempty"`
	// MetricsAddr is the Prometheus exposition listen address.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
	// OllamaHost overrides the local Ollama endpoint.
	OllamaHost string `yaml:"ollama_host,omitempty"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		ModelName:     "claude-sonnet-4-20250514",
		MaxIterations: 3,
		DatabasePath:  "negotiator.db",
		MetricsAddr:   ":9090",
	}
}

// ModelInfo contains static information about a known LLM model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string  // API provider (anthropic, openai, google, ollama)
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels contains pricing and context information for common models.
// Unknown models fall back to provider inference by name prefix.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	"claude-sonnet-4-20250514": {
		Provider:         "anthropic",
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-opus-4-20250514": {
		Provider:         "anthropic",
		InputCPM:         15.0,
		OutputCPM:        75.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"gpt-4o": {
		Provider:         "openai",
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"o3-mini": {
		Provider:         "openai",
		InputCPM:         1.1,
		OutputCPM:        4.4,
		MaxContextTokens: 200000,
		MaxOutputTokens:  100000,
	},
	"gemini-2.5-pro": {
		Provider:         "google",
		InputCPM:         1.25,
		OutputCPM:        10.0,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
}

// GetModelInfo returns the ModelInfo for a model, false when unregistered.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	info, ok := KnownModels[modelName]
	return info, ok
}

// LoadConfig reads the YAML file at path into the singleton, applying
// defaults for absent fields. A missing file is not an error; defaults win.
func LoadConfig(path string) error {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		getLogger().Info("ℹ️ no config file at %s, using defaults", path)
	case err != nil:
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return err
	}

	mu.Lock()
	config = &cfg
	mu.Unlock()
	getLogger().Info("✅ config loaded: model %s, max iterations %d", cfg.ModelName, cfg.MaxIterations)
	return nil
}

func (c *Config) validate() error {
	if c.ModelName == "" {
		return fmt.Errorf("model_name cannot be empty")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	return nil
}

// GetConfig returns a copy of the loaded configuration.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not loaded, call LoadConfig first")
	}
	return *config, nil
}

// SaveConfig writes the configuration to the given path as YAML.
func SaveConfig(path string, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// Reset clears the singleton. Test helper.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	config = nil
}
