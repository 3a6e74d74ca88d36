package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"promptarchitect/internal/mocks"
	"promptarchitect/pkg/chain"
	"promptarchitect/pkg/journal"
	"promptarchitect/pkg/llmerrors"
	"promptarchitect/pkg/prompt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sciFiRequest() prompt.Request {
	return prompt.Request{
		Objective: "Create a creative writing assistant for sci-fi authors",
		Target:    prompt.TargetGeneric,
	}
}

func newController(t *testing.T, replies map[string]mocks.Reply, opts ...Option) (*Controller, *mocks.MockLLMClient) {
	t.Helper()
	client := mocks.NewMockLLMClient()
	client.RespondByOperation(replies)
	return New(chain.New(client, nil, chain.Options{}), opts...), client
}

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestRunSciFiScenario(t *testing.T) {
	c, client := newController(t, mocks.PipelineReplies())

	result, err := c.Run(context.Background(), sciFiRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"drafter", "evaluator", "refiner"}, client.GetOperations())
	assert.NotEmpty(t, result.EngineeredPrompt)
	require.NotNil(t, result.EvaluationReport)
	total := int(result.EvaluationReport.TotalScore)
	assert.True(t, total >= 0 && total <= prompt.MaxTotal, "total %d out of range", total)

	complete, ok := c.State().(Complete)
	require.True(t, ok, "expected Complete, got %T", c.State())
	assert.Same(t, result, complete.Result)
	assert.NotEmpty(t, complete.RunID)
}

func TestResultCarriesEvaluatorReport(t *testing.T) {
	var evaluated *prompt.EvaluationReport
	p := &funcPipeline{
		draft: func(context.Context, prompt.Request) (*prompt.Draft, error) {
			return &prompt.Draft{DraftPrompt: "d"}, nil
		},
		evaluate: func(context.Context, string) (*prompt.EvaluationReport, error) {
			evaluated = &prompt.EvaluationReport{TotalScore: 100}
			return evaluated, nil
		},
		refine: func(_ context.Context, _ string, r *prompt.EvaluationReport) (*prompt.Result, error) {
			return &prompt.Result{EngineeredPrompt: "p", EvaluationReport: r}, nil
		},
	}
	result, err := New(p).Run(context.Background(), sciFiRequest())
	require.NoError(t, err)
	assert.Same(t, evaluated, result.EvaluationReport)
}

func TestStageFailuresStopTheChain(t *testing.T) {
	tests := []struct {
		name      string
		failing   string
		reply     mocks.Reply
		wantOps   []string
		wantStage chain.Stage
	}{
		{
			name:      "malformed drafter json",
			failing:   mocks.OpDrafter,
			reply:     mocks.Reply{Content: "not json at all"},
			wantOps:   []string{"drafter"},
			wantStage: chain.StageDrafter,
		},
		{
			name:      "evaluator transport",
			failing:   mocks.OpEvaluator,
			reply:     mocks.Reply{Err: llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "quota exhausted")},
			wantOps:   []string{"drafter", "evaluator"},
			wantStage: chain.StageEvaluator,
		},
		{
			name:      "refiner missing prompt",
			failing:   mocks.OpRefiner,
			reply:     mocks.Reply{Content: `{"implementationNotes":"x"}`},
			wantOps:   []string{"drafter", "evaluator", "refiner"},
			wantStage: chain.StageRefiner,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := mocks.PipelineReplies()
			replies[tt.failing] = tt.reply
			c, client := newController(t, replies)

			result, err := c.Run(context.Background(), sciFiRequest())
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.wantOps, client.GetOperations())

			failed, ok := c.State().(Failed)
			require.True(t, ok, "expected Failed, got %T", c.State())
			assert.Equal(t, tt.wantStage, failed.Stage)
			assert.NotEmpty(t, failed.Message)
			assert.Contains(t, failed.Message, string(tt.wantStage)+" stage failed")

			snap := c.Snapshot()
			assert.Nil(t, snap.Result)
			assert.Equal(t, failed.Message, snap.Error)
		})
	}
}

func TestEmptyObjectiveMakesNoCalls(t *testing.T) {
	c, client := newController(t, mocks.PipelineReplies())

	_, err := c.Run(context.Background(), prompt.Request{Objective: "   "})
	assert.True(t, errors.Is(err, prompt.ErrEmptyObjective))

	_, err = c.Submit(context.Background(), prompt.Request{})
	assert.True(t, errors.Is(err, prompt.ErrEmptyObjective))

	assert.Equal(t, 0, client.GetCallCount())
	assert.IsType(t, Idle{}, c.State())
}

func TestProgressCheckpointsInOrder(t *testing.T) {
	c, _ := newController(t, mocks.PipelineReplies())
	updates, unsubscribe := c.Subscribe(32)
	defer unsubscribe()

	_, err := c.Run(context.Background(), sciFiRequest())
	require.NoError(t, err)

	var progress []int
	var statuses []string
	var last Snapshot
	for len(updates) > 0 {
		snap := <-updates
		last = snap
		if snap.Phase == PhaseRunning {
			progress = append(progress, snap.Progress)
			statuses = append(statuses, snap.Status)
		}
	}

	assert.Equal(t, []int{10, 30, 60, 100}, progress)
	assert.Equal(t, []string{StatusDrafting, StatusEvaluating, StatusRefining, StatusFinalizing}, statuses)
	assert.Equal(t, PhaseComplete, last.Phase)
	assert.NotNil(t, last.Result)
}

func TestSlowSubscriberGetsFinalState(t *testing.T) {
	c, _ := newController(t, mocks.PipelineReplies())
	updates, unsubscribe := c.Subscribe(1)
	defer unsubscribe()

	_, err := c.Run(context.Background(), sciFiRequest())
	require.NoError(t, err)

	snap := <-updates
	assert.Equal(t, PhaseComplete, snap.Phase)
	assert.True(t, snap.Terminal())
	assert.Empty(t, updates)
}

func TestConcurrentSubmitRejected(t *testing.T) {
	client := mocks.NewMockLLMClient()
	entered := make(chan struct{}, 1)
	client.BlockOn(mocks.OpDrafter, entered, nil)
	c := New(chain.New(client, nil, chain.Options{}))

	runID, err := c.Submit(context.Background(), sciFiRequest())
	require.NoError(t, err)
	<-entered

	_, err = c.Submit(context.Background(), sciFiRequest())
	assert.ErrorIs(t, err, ErrRunInProgress)
	_, err = c.Run(context.Background(), sciFiRequest())
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.ErrorIs(t, c.NewSession(), ErrRunInProgress)

	running, ok := c.State().(Running)
	require.True(t, ok)
	assert.Equal(t, runID, running.RunID)
	assert.Equal(t, chain.StageDrafter, running.Stage)

	require.NoError(t, c.Cancel())
	waitIdle(t, c)
}

func TestCancelDuringStage(t *testing.T) {
	client := mocks.NewMockLLMClient()
	entered := make(chan struct{}, 1)
	client.BlockOn(mocks.OpEvaluator, entered, mocks.PipelineReplies())
	rec := &recordingRecorder{}
	c := New(chain.New(client, nil, chain.Options{}), WithRecorder(rec))

	_, err := c.Submit(context.Background(), sciFiRequest())
	require.NoError(t, err)
	<-entered

	require.NoError(t, c.Cancel())
	waitIdle(t, c)

	failed, ok := c.State().(Failed)
	require.True(t, ok, "expected Failed, got %T", c.State())
	assert.ErrorIs(t, failed.Err, ErrRunCanceled)
	assert.Equal(t, chain.StageEvaluator, failed.Stage)
	assert.Equal(t, []string{"drafter", "evaluator"}, client.GetOperations())

	runs := rec.getRuns()
	require.Len(t, runs, 1)
	assert.Equal(t, "canceled", runs[0].outcome)
	assert.Equal(t, "evaluator", runs[0].stage)

	assert.ErrorIs(t, c.Cancel(), ErrNotRunning)
}

func TestRunCallerContextCancels(t *testing.T) {
	client := mocks.NewMockLLMClient()
	entered := make(chan struct{}, 1)
	client.BlockOn(mocks.OpDrafter, entered, nil)
	c := New(chain.New(client, nil, chain.Options{}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx, sciFiRequest())
		errCh <- err
	}()
	<-entered
	cancel()

	assert.ErrorIs(t, <-errCh, ErrRunCanceled)
	assert.IsType(t, Failed{}, c.State())
}

func TestRetryAfterFailure(t *testing.T) {
	replies := mocks.PipelineReplies()
	replies[mocks.OpEvaluator] = mocks.Reply{Err: llmerrors.NewError(llmerrors.ErrorTypeTransient, "server error")}
	c, client := newController(t, replies)

	_, err := c.Retry(context.Background())
	assert.ErrorIs(t, err, ErrNoFailedRun)

	_, err = c.Run(context.Background(), sciFiRequest())
	require.Error(t, err)
	first := c.State().(Failed)

	client.Reset()
	client.RespondByOperation(mocks.PipelineReplies())

	runID, err := c.Retry(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, runID)
	waitIdle(t, c)

	assert.Equal(t, []string{"drafter", "evaluator", "refiner"}, client.GetOperations())
	complete, ok := c.State().(Complete)
	require.True(t, ok, "expected Complete, got %T", c.State())
	assert.Equal(t, first.Request.Objective, complete.Request.Objective)
}

func TestNewSessionClearsResult(t *testing.T) {
	c, _ := newController(t, mocks.PipelineReplies())
	require.NoError(t, c.NewSession())

	_, err := c.Run(context.Background(), sciFiRequest())
	require.NoError(t, err)
	require.NotNil(t, c.Snapshot().Result)

	require.NoError(t, c.NewSession())
	assert.IsType(t, Idle{}, c.State())
	snap := c.Snapshot()
	assert.Nil(t, snap.Result)
	assert.Equal(t, 0, snap.Progress)
	assert.Equal(t, PhaseIdle, snap.Phase)
}

func TestResetAfterFailure(t *testing.T) {
	replies := mocks.PipelineReplies()
	replies[mocks.OpDrafter] = mocks.Reply{Content: "{"}
	c, _ := newController(t, replies)

	_, err := c.Run(context.Background(), sciFiRequest())
	require.Error(t, err)
	require.NoError(t, c.Reset())
	assert.IsType(t, Idle{}, c.State())
}

func TestSubmitAfterCompleteNeedsNewSession(t *testing.T) {
	c, client := newController(t, mocks.PipelineReplies())
	first, err := c.Run(context.Background(), sciFiRequest())
	require.NoError(t, err)

	updates, unsubscribe := c.Subscribe(4)
	defer unsubscribe()
	<-updates

	_, err = c.Submit(context.Background(), prompt.Request{Objective: "second"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = c.Run(context.Background(), prompt.Request{Objective: "second"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	complete, ok := c.State().(Complete)
	require.True(t, ok, "expected Complete to be kept, got %T", c.State())
	assert.Same(t, first, complete.Result)
	assert.Equal(t, 3, client.GetCallCount())
	select {
	case snap := <-updates:
		t.Fatalf("Rejected submission published a %s snapshot", snap.Phase)
	default:
	}

	require.NoError(t, c.NewSession())
	_, err = c.Submit(context.Background(), prompt.Request{Objective: "second"})
	require.NoError(t, err)
	waitIdle(t, c)

	assert.Equal(t, 6, client.GetCallCount())
	complete = c.State().(Complete)
	assert.Equal(t, "second", complete.Request.Objective)
}

func TestRequestIsCopied(t *testing.T) {
	c, _ := newController(t, mocks.PipelineReplies())
	req := prompt.Request{Objective: "o", Techniques: []prompt.Technique{prompt.TechniqueFewShot, prompt.TechniqueFewShot}}

	_, err := c.Run(context.Background(), req)
	require.NoError(t, err)
	req.Techniques[0] = prompt.TechniqueConstitutional

	complete := c.State().(Complete)
	assert.Equal(t, []prompt.Technique{prompt.TechniqueFewShot}, complete.Request.Techniques)
}

func TestMetricsAndJournal(t *testing.T) {
	rec := &recordingRecorder{}
	j := &memJournal{}
	ids := []string{"run-a", "run-b"}
	var idx int
	c, _ := newController(t, mocks.PipelineReplies(),
		WithRecorder(rec),
		WithJournal(j),
		WithIDGenerator(func() string { id := ids[idx]; idx++; return id }),
	)

	_, err := c.Run(context.Background(), prompt.Request{
		Objective:  "o",
		Target:     prompt.TargetGemini,
		Techniques: []prompt.Technique{prompt.TechniqueXMLTagging},
	})
	require.NoError(t, err)

	runs := rec.getRuns()
	require.Len(t, runs, 1)
	assert.Equal(t, "complete", runs[0].outcome)
	assert.Equal(t, []int{140}, rec.getScores())

	started, finished := j.get()
	require.Len(t, started, 1)
	assert.Equal(t, "run-a", started[0].ID)
	assert.Equal(t, "gemini", started[0].Target)
	assert.Equal(t, []string{"xml_tagging"}, started[0].Techniques)
	assert.Equal(t, "mock-model", started[0].Model)
	require.Len(t, finished, 1)
	assert.Equal(t, journal.StatusComplete, finished[0].Status)
	require.NotNil(t, finished[0].TotalScore)
	assert.Equal(t, 140, *finished[0].TotalScore)
}

func TestJournalErrorsDoNotFailRun(t *testing.T) {
	j := &memJournal{err: errors.New("disk full")}
	c, _ := newController(t, mocks.PipelineReplies(), WithJournal(j))
	_, err := c.Run(context.Background(), sciFiRequest())
	assert.NoError(t, err)
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Phase
		ok       bool
	}{
		{PhaseIdle, PhaseRunning, true},
		{PhaseIdle, PhaseComplete, false},
		{PhaseRunning, PhaseRunning, true},
		{PhaseRunning, PhaseComplete, true},
		{PhaseRunning, PhaseFailed, true},
		{PhaseRunning, PhaseIdle, false},
		{PhaseComplete, PhaseIdle, true},
		{PhaseComplete, PhaseRunning, false},
		{PhaseFailed, PhaseIdle, true},
		{PhaseFailed, PhaseRunning, true},
	}
	for _, tt := range tests {
		if got := ValidTransitions.Allows(tt.from, tt.to); got != tt.ok {
			t.Errorf("Allows(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
	assert.ErrorIs(t, ValidTransitions.check(PhaseIdle, PhaseFailed), ErrInvalidTransition)
}

func TestFailureMessageFallback(t *testing.T) {
	assert.Equal(t, FallbackMessage, failureMessage(nil))
	assert.Equal(t, FallbackMessage, failureMessage(errors.New("")))
	assert.Equal(t, "boom", failureMessage(errors.New("boom")))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	c, _ := newController(t, mocks.PipelineReplies())
	updates, unsubscribe := c.Subscribe(0)
	first := <-updates
	assert.Equal(t, PhaseIdle, first.Phase)

	unsubscribe()
	unsubscribe()
	_, open := <-updates
	assert.False(t, open)

	_, err := c.Run(context.Background(), sciFiRequest())
	assert.NoError(t, err)
}

// funcPipeline adapts plain functions to Pipeline.
type funcPipeline struct {
	draft    func(context.Context, prompt.Request) (*prompt.Draft, error)
	evaluate func(context.Context, string) (*prompt.EvaluationReport, error)
	refine   func(context.Context, string, *prompt.EvaluationReport) (*prompt.Result, error)
}

func (f *funcPipeline) Draft(ctx context.Context, req prompt.Request) (*prompt.Draft, error) {
	return f.draft(ctx, req)
}

func (f *funcPipeline) Evaluate(ctx context.Context, d string) (*prompt.EvaluationReport, error) {
	return f.evaluate(ctx, d)
}

func (f *funcPipeline) Refine(ctx context.Context, d string, r *prompt.EvaluationReport) (*prompt.Result, error) {
	return f.refine(ctx, d, r)
}

func (f *funcPipeline) ModelName() string { return "func-model" }

type runObservation struct {
	outcome, stage string
}

type recordingRecorder struct {
	mu     sync.Mutex
	runs   []runObservation
	scores []int
}

func (r *recordingRecorder) ObserveRequest(_, _ string, _, _ int, _ float64, _ bool, _ string, _ time.Duration) {
}
func (r *recordingRecorder) IncThrottle(_, _ string)                    {}
func (r *recordingRecorder) ObserveQueueWait(_ string, _ time.Duration) {}

func (r *recordingRecorder) ObserveRun(outcome, stage string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, runObservation{outcome, stage})
}

func (r *recordingRecorder) ObserveScore(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores = append(r.scores, total)
}

func (r *recordingRecorder) getRuns() []runObservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runObservation(nil), r.runs...)
}

func (r *recordingRecorder) getScores() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.scores...)
}

type memJournal struct {
	mu       sync.Mutex
	err      error
	started  []journal.Entry
	finished []journal.Entry
}

func (m *memJournal) RunStarted(_ context.Context, e journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, e)
	return m.err
}

func (m *memJournal) RunFinished(_ context.Context, e journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, e)
	return m.err
}

func (m *memJournal) get() ([]journal.Entry, []journal.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]journal.Entry(nil), m.started...), append([]journal.Entry(nil), m.finished...)
}
