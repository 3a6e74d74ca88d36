package openai

import (
	"strings"
	"testing"

	"promptarchitect/pkg/config"
	"promptarchitect/pkg/llm"
)

func TestNewOfficialClientWithModel(t *testing.T) {
	client := NewOfficialClientWithModel("test-key", config.ModelGPT4o)
	if client.GetModelName() != config.ModelGPT4o {
		t.Errorf("expected %s, got %s", config.ModelGPT4o, client.GetModelName())
	}
}

func TestBuildParams(t *testing.T) {
	o := NewOfficialClientWithModel("k", config.ModelGPT4o).(*OfficialClient)

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("You refine prompts."),
		llm.NewUserMessage("Original Draft:\nx"),
	})
	req.ResponseFormat = llm.FormatJSON
	req.MaxTokens = 1_000_000

	params, err := o.buildParams(req)
	if err != nil {
		t.Fatalf("buildParams failed: %v", err)
	}

	if got := params.MaxOutputTokens.Or(0); got != 16384 {
		t.Errorf("MaxOutputTokens = %d, want capped 16384", got)
	}
	instructions := params.Instructions.Or("")
	if !strings.HasPrefix(instructions, "You refine prompts.") || !strings.Contains(instructions, "JSON object") {
		t.Errorf("unexpected instructions %q", instructions)
	}
	if params.Input.OfString.Or("") != "Original Draft:\nx" {
		t.Errorf("unexpected input %q", params.Input.OfString.Or(""))
	}
	if !params.Temperature.Valid() {
		t.Error("gpt-4o should receive a temperature")
	}
}

func TestBuildParamsOmitsUnsetLimit(t *testing.T) {
	o := NewOfficialClientWithModel("k", config.ModelGPT4o).(*OfficialClient)

	params, err := o.buildParams(llm.CompletionRequest{Messages: []llm.CompletionMessage{llm.NewUserMessage("x")}})
	if err != nil {
		t.Fatalf("buildParams failed: %v", err)
	}
	if params.MaxOutputTokens.Valid() {
		t.Errorf("expected no output limit, got %d", params.MaxOutputTokens.Or(0))
	}
}

func TestBuildParamsRequiresUserMessage(t *testing.T) {
	o := NewOfficialClientWithModel("k", config.ModelGPT5).(*OfficialClient)
	if _, err := o.buildParams(llm.CompletionRequest{Messages: []llm.CompletionMessage{llm.NewSystemMessage("s")}}); err == nil {
		t.Error("expected error for system-only request")
	}
}

func TestSupportsTemperature(t *testing.T) {
	tests := map[string]bool{
		"gpt-4o":  true,
		"gpt-5":   false,
		"o3-mini": false,
		"gpt-4.1": true,
	}
	for model, want := range tests {
		if got := supportsTemperature(model); got != want {
			t.Errorf("supportsTemperature(%s) = %v, want %v", model, got, want)
		}
	}
}
