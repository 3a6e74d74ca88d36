package config

import (
	"fmt"
	"os"
	"strings"
)

// Model name constants.
const (
	ModelGemini3Pro    = "gemini-3-pro-preview"
	ModelGemini25Pro   = "gemini-2.5-pro"
	ModelGemini25Flash = "gemini-2.5-flash"
	ModelClaudeSonnet4 = "claude-sonnet-4-5"
	ModelClaudeOpus45  = "claude-opus-4-5"
	ModelGPT5          = "gpt-5"
	ModelGPT4o         = "gpt-4o"
)

// Provider constants.
const (
	ProviderGoogle    = "google"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Credential environment variables.
const (
	EnvGeminiAPIKey      = "GEMINI_API_KEY"
	EnvGoogleAPIKey      = "GOOGLE_GENAI_API_KEY"
	EnvGenericAPIKey     = "API_KEY"
	EnvAnthropicAPIKey   = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvOllamaHost        = "OLLAMA_HOST"
	DefaultOllamaHostURL = "http://localhost:11434"
)

// ModelInfo contains static information about a known model.
type ModelInfo struct {
	Provider         string  // API provider
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int
	MaxOutputTokens  int
}

// KnownModels registry contains pricing and provider information for common models.
// Unknown models are inferred via ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	ModelGemini3Pro: {
		Provider:         ProviderGoogle,
		InputCPM:         2.0,
		OutputCPM:        12.0,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	ModelGemini25Pro: {
		Provider:         ProviderGoogle,
		InputCPM:         1.25,
		OutputCPM:        10.0,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	ModelGemini25Flash: {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	ModelClaudeSonnet4: {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  64000,
	},
	ModelClaudeOpus45: {
		Provider:         ProviderAnthropic,
		InputCPM:         5.0,
		OutputCPM:        25.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  64000,
	},
	ModelGPT5: {
		Provider:         ProviderOpenAI,
		InputCPM:         1.25,
		OutputCPM:        10.0,
		MaxContextTokens: 400000,
		MaxOutputTokens:  128000,
	},
	ModelGPT4o: {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
}

// ProviderPattern represents a pattern for inferring provider from model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model names.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"gemini", ProviderGoogle},
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"ollama:", ProviderOllama}, // Explicit prefix like "ollama:qwen3"
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"gemma", ProviderOllama},
	{"phi", ProviderOllama},
	{"deepseek", ProviderOllama},
}

// GetModelProvider returns the API provider for a given model.
// First checks KnownModels, then tries pattern matching.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}

	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}

	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match - cannot determine API provider", modelName)
}

// GetModelInfo returns the ModelInfo for a given model name, with conservative
// defaults and an inferred provider when the model is not registered.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}

	provider, _ := GetModelProvider(modelName)
	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
		MaxOutputTokens:  8192,
	}, false
}

// CalculateCost calculates the cost in USD for a given model and token usage.
// Unknown models cost 0.
func CalculateCost(modelName string, promptTokens, completionTokens int) float64 {
	info, exists := KnownModels[modelName]
	if !exists {
		return 0
	}
	inputCost := (float64(promptTokens) / 1_000_000.0) * info.InputCPM
	outputCost := (float64(completionTokens) / 1_000_000.0) * info.OutputCPM
	return inputCost + outputCost
}

// GetAPIKey returns the credential for a given provider.
// Checks the secrets file first, then falls back to environment variables.
// For Ollama, returns the host URL instead of an API key.
func GetAPIKey(provider string) (string, error) {
	var names []string
	switch provider {
	case ProviderGoogle:
		names = []string{EnvGeminiAPIKey, EnvGoogleAPIKey, EnvGenericAPIKey}
	case ProviderAnthropic:
		names = []string{EnvAnthropicAPIKey}
	case ProviderOpenAI:
		names = []string{EnvOpenAIAPIKey}
	case ProviderOllama:
		if host := os.Getenv(EnvOllamaHost); host != "" {
			return host, nil
		}
		return DefaultOllamaHostURL, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	for _, name := range names {
		if key, err := GetSecret(name); err == nil && key != "" {
			return key, nil
		}
	}

	return "", fmt.Errorf("API key not found: %s not found in secrets file or environment variables", strings.Join(names, ", "))
}
