// Package chain implements the three model stages of the pipeline: drafting, evaluation and refinement.
// Each stage is a single request/response round trip; sequencing is the orchestrator's job.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"promptarchitect/pkg/instructions"
	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/logx"
	"promptarchitect/pkg/prompt"
	"promptarchitect/pkg/utils"
)

// Options tune the requests sent by every stage.
type Options struct {
	Validation  prompt.ValidationMode
	MaxTokens   int      // 0 sends no output limit
	Temperature *float32 // nil uses llm.TemperatureDefault; 0 is sent as is
}

// Chain issues the stage calls against one model client.
type Chain struct {
	client       llm.LLMClient
	instructions *instructions.Store
	logger       *logx.Logger
	opts         Options
}

// New creates a chain. A nil store serves the embedded default instructions.
func New(client llm.LLMClient, store *instructions.Store, opts Options) *Chain {
	if store == nil {
		store = instructions.NewStaticStore(instructions.Defaults())
	}
	if opts.MaxTokens < 0 {
		opts.MaxTokens = 0
	}
	if opts.Temperature == nil {
		t := float32(llm.TemperatureDefault)
		opts.Temperature = &t
	}
	if opts.Validation == "" {
		opts.Validation = prompt.ValidationShape
	}
	return &Chain{
		client:       client,
		instructions: store,
		opts:         opts,
		logger:       logx.NewLogger("chain"),
	}
}

// ModelName returns the model the chain talks to.
func (c *Chain) ModelName() string {
	return c.client.GetModelName()
}

// DraftContents builds the drafter's user message.
func DraftContents(req *prompt.Request) string {
	ctxText := req.Context
	if strings.TrimSpace(ctxText) == "" {
		ctxText = "None"
	}
	return fmt.Sprintf("Intent: %s\nContext: %s\nModel: %s\nTechniques: %s",
		req.Objective, ctxText, req.Target.Label(), strings.Join(req.TechniqueLabels(), ", "))
}

// EvaluateContents builds the evaluator's user message.
func EvaluateContents(draft string) string {
	return "Evaluate this prompt:\n\n" + draft
}

// RefineContents builds the refiner's user message.
func RefineContents(draft string, report *prompt.EvaluationReport) (string, error) {
	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode evaluation report: %w", err)
	}
	return fmt.Sprintf("Original Draft:\n%s\n\nEvaluation Report:\n%s", draft, reportJSON), nil
}

// Draft produces the initial prompt for req.
func (c *Chain) Draft(ctx context.Context, req prompt.Request) (*prompt.Draft, error) {
	if strings.TrimSpace(req.Objective) == "" {
		return nil, &StageError{Stage: StageDrafter, Kind: KindInput, Err: prompt.ErrEmptyObjective}
	}

	var draft prompt.Draft
	if err := c.call(ctx, StageDrafter, c.instructions.Current().Drafter, DraftContents(&req), &draft); err != nil {
		return nil, err
	}
	if strings.TrimSpace(draft.DraftPrompt) == "" {
		return nil, responseErr(StageDrafter, "response is missing draftPrompt")
	}
	return &draft, nil
}

// Evaluate scores draft against the 35-criteria rubric.
func (c *Chain) Evaluate(ctx context.Context, draft string) (*prompt.EvaluationReport, error) {
	if strings.TrimSpace(draft) == "" {
		return nil, &StageError{Stage: StageEvaluator, Kind: KindInput, Err: fmt.Errorf("draft prompt is empty")}
	}

	var report prompt.EvaluationReport
	if err := c.call(ctx, StageEvaluator, c.instructions.Current().Evaluator, EvaluateContents(draft), &report); err != nil {
		return nil, err
	}
	if err := report.Validate(c.opts.Validation); err != nil {
		return nil, responseErr(StageEvaluator, "invalid evaluation report (%s validation): %w", c.opts.Validation, err)
	}
	return &report, nil
}

// Refine applies report to draft and returns the final result carrying report.
func (c *Chain) Refine(ctx context.Context, draft string, report *prompt.EvaluationReport) (*prompt.Result, error) {
	if report == nil {
		return nil, &StageError{Stage: StageRefiner, Kind: KindInput, Err: fmt.Errorf("evaluation report is missing")}
	}
	contents, err := RefineContents(draft, report)
	if err != nil {
		return nil, &StageError{Stage: StageRefiner, Kind: KindInput, Err: err}
	}

	var result prompt.Result
	if err := c.call(ctx, StageRefiner, c.instructions.Current().Refiner, contents, &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.EngineeredPrompt) == "" {
		return nil, responseErr(StageRefiner, "response is missing engineeredPrompt")
	}
	result.EvaluationReport = report
	return &result, nil
}

// call sends one JSON-mode request and decodes the reply into out.
func (c *Chain) call(ctx context.Context, stage Stage, system, contents string, out any) error {
	ctx = llm.WithOperation(ctx, string(stage))

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(system),
		llm.NewUserMessage(contents),
	})
	req.ResponseFormat = llm.FormatJSON
	req.MaxTokens = c.opts.MaxTokens
	req.Temperature = *c.opts.Temperature

	logx.Debug(ctx, "chain", "%s request: ~%d tokens", stage, utils.CountTokensSimple(system)+utils.CountTokensSimple(contents))

	resp, err := c.client.Complete(ctx, req)
	if err != nil {
		c.logger.Warn("❌ %s call failed: %v", stage, err)
		return transportErr(stage, err)
	}

	body := StripCodeFence(resp.Content)
	if err := json.Unmarshal([]byte(body), out); err != nil {
		c.logger.Warn("❌ %s returned unparseable JSON (%d bytes, stop=%s)", stage, len(resp.Content), resp.StopReason)
		return responseErr(stage, "response is not valid JSON: %w", err)
	}
	c.logger.Info("✅ %s complete (%d prompt / %d completion tokens)", stage, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return nil
}

// StripCodeFence removes a surrounding markdown code fence such as ```json ... ```.
// Providers without a native JSON mode often wrap their reply this way.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return s
	}
	body := s[nl+1:]
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
