// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides token counting for model requests and replies.
type TokenCounter struct {
	codec tokenizer.Codec
}

//nolint:gochecknoglobals // Codec construction is expensive, share one per process
var (
	defaultCounter     *TokenCounter
	defaultCounterOnce sync.Once
)

// NewTokenCounter creates a token counter for the given model.
// Gemini, Claude and local models publish no tiktoken encoding; every family is
// approximated with the GPT-4 encoding, which is close enough for metrics and rate limits.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if tc == nil || tc.codec == nil {
		// Character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountTokensSimple counts tokens with a shared default counter.
func CountTokensSimple(text string) int {
	defaultCounterOnce.Do(func() {
		counter, err := NewTokenCounter("")
		if err == nil {
			defaultCounter = counter
		}
	})
	return defaultCounter.CountTokens(text)
}
