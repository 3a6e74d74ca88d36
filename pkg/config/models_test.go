package config

import (
	"math"
	"testing"
)

func TestGetModelProvider(t *testing.T) {
	tests := []struct {
		model   string
		want    string
		wantErr bool
	}{
		{ModelGemini3Pro, ProviderGoogle, false},
		{"gemini-2.0-flash-exp", ProviderGoogle, false},
		{ModelClaudeSonnet4, ProviderAnthropic, false},
		{"gpt-4.1", ProviderOpenAI, false},
		{"o3-mini", ProviderOpenAI, false},
		{"ollama:qwen3", ProviderOllama, false},
		{"gemma3:4b", ProviderOllama, false},
		{"unknown-model", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got, err := GetModelProvider(tt.model)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetModelProvider(%s) error = %v, wantErr %v", tt.model, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("GetModelProvider(%s) = %s, want %s", tt.model, got, tt.want)
			}
		})
	}
}

func TestGetModelInfoUnknownModel(t *testing.T) {
	info, known := GetModelInfo("qwen3:8b")
	if known {
		t.Error("qwen3:8b should not be a registered model")
	}
	if info.Provider != ProviderOllama {
		t.Errorf("Expected inferred ollama provider, got %s", info.Provider)
	}
	if info.MaxOutputTokens == 0 {
		t.Error("Expected conservative default output limit")
	}
}

func TestCalculateCost(t *testing.T) {
	cost := CalculateCost(ModelGemini3Pro, 1_000_000, 500_000)
	if math.Abs(cost-8.0) > 1e-9 {
		t.Errorf("Expected $8.00, got %f", cost)
	}
	if CalculateCost("qwen3:8b", 1000, 1000) != 0 {
		t.Error("Unknown models should cost 0")
	}
}

func TestGetAPIKeyFallbacks(t *testing.T) {
	SetDecryptedSecrets(nil)
	t.Cleanup(func() { SetDecryptedSecrets(nil) })

	t.Setenv(EnvGeminiAPIKey, "")
	t.Setenv(EnvGoogleAPIKey, "")
	t.Setenv(EnvGenericAPIKey, "generic-key")

	key, err := GetAPIKey(ProviderGoogle)
	if err != nil || key != "generic-key" {
		t.Fatalf("Expected API_KEY fallback, got %q (%v)", key, err)
	}

	t.Setenv(EnvGeminiAPIKey, "gemini-key")
	key, _ = GetAPIKey(ProviderGoogle)
	if key != "gemini-key" {
		t.Errorf("Expected GEMINI_API_KEY to win, got %q", key)
	}

	SetSecret(EnvGeminiAPIKey, "secret-file-key")
	key, _ = GetAPIKey(ProviderGoogle)
	if key != "secret-file-key" {
		t.Errorf("Expected secrets file to win over env, got %q", key)
	}

	t.Setenv(EnvOllamaHost, "")
	host, err := GetAPIKey(ProviderOllama)
	if err != nil || host != DefaultOllamaHostURL {
		t.Errorf("Expected default ollama host, got %q (%v)", host, err)
	}

	t.Setenv(EnvAnthropicAPIKey, "")
	if _, err := GetAPIKey(ProviderAnthropic); err == nil {
		t.Error("Expected missing key error")
	}
	if _, err := GetAPIKey("bedrock"); err == nil {
		t.Error("Expected unknown provider error")
	}
}
