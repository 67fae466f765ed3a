package contextmgr

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides tiktoken-based token counting.
// All supported providers are approximated with GPT-4 encoding.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter for the given model name.
func NewTokenCounter(model string) (*TokenCounter, error) {
	// Claude, Gemini and local models tokenize similarly enough that GPT-4
	// encoding is an acceptable approximation for budget decisions.
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}
