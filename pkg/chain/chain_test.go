package chain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptarchitect/internal/mocks"
	"promptarchitect/pkg/instructions"
	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/llmerrors"
	"promptarchitect/pkg/prompt"
)

func newChain(t *testing.T, replies map[string]mocks.Reply) (*Chain, *mocks.MockLLMClient) {
	t.Helper()
	client := mocks.NewMockLLMClient()
	client.RespondByOperation(replies)
	return New(client, nil, Options{}), client
}

func TestDraftContents(t *testing.T) {
	req := prompt.Request{
		Objective:  "Summarize legal contracts",
		Target:     prompt.TargetClaude,
		Techniques: []prompt.Technique{prompt.TechniqueChainOfThought, prompt.TechniqueXMLTagging},
	}
	want := "Intent: Summarize legal contracts\nContext: None\nModel: Claude (HHH Focused)\nTechniques: Chain of Thought, XML Structuring"
	assert.Equal(t, want, DraftContents(&req))

	req.Context = "For paralegals"
	req.Techniques = nil
	want = "Intent: Summarize legal contracts\nContext: For paralegals\nModel: Claude (HHH Focused)\nTechniques: "
	assert.Equal(t, want, DraftContents(&req))
}

func TestRefineContents(t *testing.T) {
	report := &prompt.EvaluationReport{
		CriteriaScores: map[string]prompt.CriterionScore{"1": {Score: 4, Strength: "clear"}},
		TotalScore:     4,
	}
	got, err := RefineContents("draft text", report)
	require.NoError(t, err)

	indented, _ := json.MarshalIndent(report, "", "  ")
	assert.Equal(t, "Original Draft:\ndraft text\n\nEvaluation Report:\n"+string(indented), got)
	assert.Contains(t, got, "\n  \"criteriaScores\": {")
}

func TestDraftRequestShape(t *testing.T) {
	c, client := newChain(t, map[string]mocks.Reply{mocks.OpDrafter: {Content: mocks.DraftJSON("draft")}})

	draft, err := c.Draft(context.Background(), prompt.Request{Objective: "Plan trips"})
	require.NoError(t, err)
	assert.Equal(t, "draft", draft.DraftPrompt)
	assert.NotEmpty(t, draft.InitialNotes)

	req, ok := client.GetLastCall()
	require.True(t, ok)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, instructions.Defaults().Drafter, req.Messages[0].Content)
	assert.Equal(t, llm.RoleUser, req.Messages[1].Role)
	assert.True(t, strings.HasPrefix(req.Messages[1].Content, "Intent: Plan trips\n"))
	assert.Equal(t, llm.FormatJSON, req.ResponseFormat)
	assert.Equal(t, []string{"drafter"}, client.GetOperations())
}

func TestDraftFailures(t *testing.T) {
	tests := []struct {
		name    string
		reply   mocks.Reply
		kind    Kind
		message string
	}{
		{"malformed json", mocks.Reply{Content: "{draftPrompt: oops"}, KindResponse, "not valid JSON"},
		{"missing field", mocks.Reply{Content: `{"initialNotes":"n"}`}, KindResponse, "missing draftPrompt"},
		{"transport", mocks.Reply{Err: llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")}, KindTransport, "bad key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newChain(t, map[string]mocks.Reply{mocks.OpDrafter: tt.reply})
			_, err := c.Draft(context.Background(), prompt.Request{Objective: "x"})

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, StageDrafter, stageErr.Stage)
			assert.Equal(t, tt.kind, stageErr.Kind)
			assert.Contains(t, err.Error(), "drafter stage failed: ")
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestDraftEmptyObjectiveMakesNoCall(t *testing.T) {
	c, client := newChain(t, mocks.PipelineReplies())
	_, err := c.Draft(context.Background(), prompt.Request{Objective: "  "})
	assert.True(t, errors.Is(err, prompt.ErrEmptyObjective))
	assert.Equal(t, 0, client.GetCallCount())
}

func TestEvaluate(t *testing.T) {
	c, client := newChain(t, map[string]mocks.Reply{mocks.OpEvaluator: {Content: mocks.ReportJSON(4)}})

	report, err := c.Evaluate(context.Background(), "my draft")
	require.NoError(t, err)
	assert.Len(t, report.CriteriaScores, 35)
	assert.Equal(t, prompt.Score(140), report.TotalScore)

	req, _ := client.GetLastCall()
	assert.Equal(t, "Evaluate this prompt:\n\nmy draft", req.Messages[1].Content)
}

func TestEvaluateValidationModes(t *testing.T) {
	shallow := `{"criteriaScores":{"1":{"score":5}},"totalScore":99,"refinementSuggestions":[]}`
	empty := `{"totalScore":0}`

	tests := []struct {
		mode    prompt.ValidationMode
		reply   string
		wantErr bool
	}{
		{prompt.ValidationTrust, empty, false},
		{prompt.ValidationShape, empty, true},
		{prompt.ValidationShape, shallow, false},
		{prompt.ValidationStrict, shallow, true},
		{prompt.ValidationStrict, mocks.ReportJSON(3), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			client := mocks.NewMockLLMClient()
			client.RespondWith(tt.reply)
			c := New(client, nil, Options{Validation: tt.mode})

			_, err := c.Evaluate(context.Background(), "draft")
			if tt.wantErr {
				var stageErr *StageError
				require.ErrorAs(t, err, &stageErr)
				assert.Equal(t, KindResponse, stageErr.Kind)
				assert.Equal(t, StageEvaluator, stageErr.Stage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRefineAttachesSameReport(t *testing.T) {
	c, client := newChain(t, map[string]mocks.Reply{mocks.OpRefiner: {Content: mocks.ResultJSON("final")}})
	report := &prompt.EvaluationReport{
		CriteriaScores: map[string]prompt.CriterionScore{"1": {Score: 4}},
		TotalScore:     4,
	}

	result, err := c.Refine(context.Background(), "draft", report)
	require.NoError(t, err)
	assert.Same(t, report, result.EvaluationReport)
	assert.Equal(t, "final", result.EngineeredPrompt)
	assert.Equal(t, "Sectioned layout.", result.DesignChoices)

	req, _ := client.GetLastCall()
	assert.True(t, strings.HasPrefix(req.Messages[1].Content, "Original Draft:\ndraft\n\nEvaluation Report:\n{"))
}

func TestRefineIgnoresReportInReply(t *testing.T) {
	reply := `{"engineeredPrompt":"p","evaluationReport":{"totalScore":1}}`
	c, _ := newChain(t, map[string]mocks.Reply{mocks.OpRefiner: {Content: reply}})
	report := &prompt.EvaluationReport{TotalScore: 120}

	result, err := c.Refine(context.Background(), "d", report)
	require.NoError(t, err)
	assert.Same(t, report, result.EvaluationReport)
}

func TestRefineMissingPrompt(t *testing.T) {
	c, _ := newChain(t, map[string]mocks.Reply{mocks.OpRefiner: {Content: `{"implementationNotes":"n"}`}})
	_, err := c.Refine(context.Background(), "d", &prompt.EvaluationReport{})
	assert.ErrorContains(t, err, "refiner stage failed: response is missing engineeredPrompt")

	_, err = c.Refine(context.Background(), "d", nil)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, KindInput, stageErr.Kind)
}

func TestCanceledContextSurfacesAsTransport(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.BlockOn(mocks.OpEvaluator, nil, nil)
	c := New(client, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Evaluate(ctx, "draft")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCustomInstructionsAndOptions(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWith(mocks.DraftJSON("d"))
	store := instructions.NewStaticStore(instructions.Set{Drafter: "custom drafter"})
	temperature := float32(0.3)
	c := New(client, store, Options{MaxTokens: 512, Temperature: &temperature})

	_, err := c.Draft(context.Background(), prompt.Request{Objective: "x"})
	require.NoError(t, err)

	req, _ := client.GetLastCall()
	assert.Equal(t, "custom drafter", req.Messages[0].Content)
	assert.Equal(t, 512, req.MaxTokens)
	assert.InDelta(t, 0.3, req.Temperature, 1e-6)
	assert.Equal(t, "mock-model", c.ModelName())
}

func TestTemperatureZeroIsSent(t *testing.T) {
	zero := float32(0)
	tests := []struct {
		name string
		opt  *float32
		want float32
	}{
		{"unset uses default", nil, llm.TemperatureDefault},
		{"explicit zero kept", &zero, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mocks.NewMockLLMClient()
			client.RespondWith(mocks.DraftJSON("d"))
			c := New(client, nil, Options{Temperature: tt.opt})

			_, err := c.Draft(context.Background(), prompt.Request{Objective: "x"})
			require.NoError(t, err)
			req, _ := client.GetLastCall()
			assert.InDelta(t, tt.want, req.Temperature, 1e-6)
			assert.Zero(t, req.MaxTokens, "no output limit unless configured")
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```\n{\"a\":1}\n```  \n", `{"a":1}`},
		{"```json {\"a\":1}```", "```json {\"a\":1}```"},
	}
	for _, tt := range tests {
		if got := StripCodeFence(tt.in); got != tt.want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStageErrorFormat(t *testing.T) {
	inner := errors.New("boom")
	err := &StageError{Stage: StageEvaluator, Kind: KindTransport, Err: inner}
	if diff := cmp.Diff("evaluator stage failed: boom", err.Error()); diff != "" {
		t.Error(diff)
	}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "transport", KindTransport.String())
	assert.Equal(t, []Stage{"drafter", "evaluator", "refiner"}, Stages)
}
