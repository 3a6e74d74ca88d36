// Package orchestrator sequences the pipeline stages for one run at a time and tracks run state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"promptarchitect/pkg/chain"
	"promptarchitect/pkg/journal"
	"promptarchitect/pkg/logx"
	"promptarchitect/pkg/metrics"
	"promptarchitect/pkg/prompt"
)

// Pipeline performs the three stage calls. *chain.Chain implements it.
type Pipeline interface {
	Draft(ctx context.Context, req prompt.Request) (*prompt.Draft, error)
	Evaluate(ctx context.Context, draft string) (*prompt.EvaluationReport, error)
	Refine(ctx context.Context, draft string, report *prompt.EvaluationReport) (*prompt.Result, error)
	ModelName() string
}

// Journal receives run start and finish records. *journal.Journal implements it.
type Journal interface {
	RunStarted(ctx context.Context, e journal.Entry) error
	RunFinished(ctx context.Context, e journal.Entry) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder records run outcomes and scores.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithJournal records every run in j.
func WithJournal(j Journal) Option {
	return func(c *Controller) { c.journal = j }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) { c.newID = newID }
}

// Controller owns the run state. All methods are safe for concurrent use.
type Controller struct {
	pipeline Pipeline
	recorder metrics.Recorder
	journal  Journal
	logger   *logx.Logger
	now      func() time.Time
	newID    func() string
	table    TransitionTable

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	idle    chan struct{} // closed when no run is in flight
	subs    map[int]*subscriber
	nextSub int
}

// New creates an idle controller.
func New(pipeline Pipeline, opts ...Option) *Controller {
	idle := make(chan struct{})
	close(idle)
	c := &Controller{
		pipeline: pipeline,
		recorder: metrics.Nop(),
		logger:   logx.NewLogger("orchestrator"),
		now:      time.Now,
		newID:    uuid.NewString,
		table:    ValidTransitions,
		state:    Idle{},
		idle:     idle,
		subs:     make(map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current state as a Snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshotOf(c.state, c.now())
}

// ModelName returns the model used by the pipeline.
func (c *Controller) ModelName() string {
	return c.pipeline.ModelName()
}

// Run executes a full run and blocks until it ends.
// A completed run must be dismissed with NewSession before another can start.
func (c *Controller) Run(ctx context.Context, req prompt.Request) (*prompt.Result, error) {
	req = req.Clone()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	runCtx, running, done, err := c.begin(ctx, req, PhaseIdle, PhaseFailed)
	if err != nil {
		return nil, err
	}
	return c.execute(runCtx, running, done)
}

// Submit starts a run in the background and returns its id.
// The run is detached from ctx's cancellation; use Cancel to stop it.
func (c *Controller) Submit(ctx context.Context, req prompt.Request) (string, error) {
	req = req.Clone()
	if err := req.Validate(); err != nil {
		return "", err
	}
	runCtx, running, done, err := c.begin(context.WithoutCancel(ctx), req, PhaseIdle, PhaseFailed)
	if err != nil {
		return "", err
	}
	go func() { _, _ = c.execute(runCtx, running, done) }()
	return running.RunID, nil
}

// Retry restarts the last failed run from the first stage with the same request.
func (c *Controller) Retry(ctx context.Context) (string, error) {
	c.mu.Lock()
	failed, ok := c.state.(Failed)
	c.mu.Unlock()
	if !ok {
		return "", ErrNoFailedRun
	}

	runCtx, running, done, err := c.begin(context.WithoutCancel(ctx), failed.Request, PhaseFailed)
	if err != nil {
		return "", err
	}
	c.logger.Info("🔁 Retrying failed run %s as %s", failed.RunID, running.RunID)
	go func() { _, _ = c.execute(runCtx, running, done) }()
	return running.RunID, nil
}

// NewSession discards the last result or failure and returns to Idle.
func (c *Controller) NewSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.(type) {
	case Idle:
		return nil
	case Running:
		return ErrRunInProgress
	}
	return c.transitionLocked(Idle{})
}

// Reset is NewSession for callers dismissing a failure.
func (c *Controller) Reset() error {
	return c.NewSession()
}

// Cancel aborts the running run. The run ends Failed with ErrRunCanceled.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	running, ok := c.state.(Running)
	if !ok || c.cancel == nil {
		return ErrNotRunning
	}
	c.logger.Info("🛑 Cancel requested for run %s during %s", running.RunID, running.Stage)
	c.cancel()
	return nil
}

// Wait blocks until no run is in flight or ctx ends.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for run to finish: %w", ctx.Err())
	}
}

// Subscribe registers for snapshots. The current snapshot is delivered immediately.
// A slow subscriber may miss intermediate snapshots but always receives the latest one.
func (c *Controller) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscriber{ch: make(chan Snapshot, buffer)}

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	sub.offer(snapshotOf(c.state, c.now()))
	c.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(sub.ch)
		})
	}
	return sub.ch, unsubscribe
}

// begin moves to Running at the first checkpoint if the current phase is one of from.
// The returned channel must be closed once the run is fully recorded.
func (c *Controller) begin(parent context.Context, req prompt.Request, from ...Phase) (context.Context, Running, chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.state.Phase()
	allowed := false
	for _, p := range from {
		if p == current {
			allowed = true
			break
		}
	}
	if !allowed {
		if current == PhaseRunning {
			return nil, Running{}, nil, ErrRunInProgress
		}
		return nil, Running{}, nil, fmt.Errorf("%w: cannot start a run from %s", ErrInvalidTransition, current)
	}

	running := Running{
		RunID:     c.newID(),
		Request:   req,
		Stage:     chain.StageDrafter,
		Progress:  ProgressDrafting,
		Status:    StatusDrafting,
		StartedAt: c.now(),
	}
	if err := c.transitionLocked(running); err != nil {
		return nil, Running{}, nil, err
	}

	runCtx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.idle = make(chan struct{})
	return runCtx, running, c.idle, nil
}

// execute runs the stages in order and records the terminal state.
func (c *Controller) execute(ctx context.Context, running Running, done chan struct{}) (*prompt.Result, error) {
	defer close(done)
	c.logger.Info("🚀 Run %s started (target %s, %d techniques)",
		running.RunID, running.Request.Target, len(running.Request.Techniques))
	c.journalStart(running)

	result, stage, err := c.stages(ctx, running)
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w during %s: %w", ErrRunCanceled, stage, err)
	}

	c.mu.Lock()
	finishedAt := c.now()
	var terminal State
	if err != nil {
		terminal = Failed{
			RunID:      running.RunID,
			Request:    running.Request,
			Stage:      stage,
			Message:    failureMessage(err),
			Err:        err,
			FinishedAt: finishedAt,
		}
	} else {
		terminal = Complete{
			RunID:      running.RunID,
			Request:    running.Request,
			Result:     result,
			FinishedAt: finishedAt,
		}
	}
	if terr := c.transitionLocked(terminal); terr != nil {
		c.logger.Error("❌ Failed to record end of run %s: %v", running.RunID, terr)
	}
	c.cancel()
	c.cancel = nil
	c.mu.Unlock()

	c.finish(running, result, stage, err, finishedAt)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// stages performs the three calls, advancing the checkpoint before each.
// It returns the stage that was in flight when an error occurred.
func (c *Controller) stages(ctx context.Context, running Running) (*prompt.Result, chain.Stage, error) {
	draft, err := c.pipeline.Draft(ctx, running.Request)
	if err != nil {
		return nil, chain.StageDrafter, err
	}

	if err := c.advance(ctx, running, chain.StageEvaluator, ProgressEvaluating, StatusEvaluating); err != nil {
		return nil, chain.StageEvaluator, err
	}
	report, err := c.pipeline.Evaluate(ctx, draft.DraftPrompt)
	if err != nil {
		return nil, chain.StageEvaluator, err
	}

	if err := c.advance(ctx, running, chain.StageRefiner, ProgressRefining, StatusRefining); err != nil {
		return nil, chain.StageRefiner, err
	}
	result, err := c.pipeline.Refine(ctx, draft.DraftPrompt, report)
	if err != nil {
		return nil, chain.StageRefiner, err
	}

	if err := c.advance(ctx, running, "", ProgressFinalizing, StatusFinalizing); err != nil {
		return nil, chain.StageRefiner, err
	}
	return result, "", nil
}

// advance publishes the next checkpoint of a running run.
func (c *Controller) advance(ctx context.Context, running Running, stage chain.Stage, progress int, status string) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // Caller wraps with ErrRunCanceled
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	running.Stage = stage
	running.Progress = progress
	running.Status = status
	return c.transitionLocked(running)
}

// transitionLocked validates, applies and publishes a state change. c.mu must be held.
func (c *Controller) transitionLocked(next State) error {
	from := c.state.Phase()
	if err := c.table.check(from, next.Phase()); err != nil {
		return err
	}
	c.state = next
	c.logger.Info("🔄 State machine transition: %s → %s", from, next.Phase())

	snap := snapshotOf(next, c.now())
	for _, sub := range c.subs {
		sub.offer(snap)
	}
	return nil
}

func (c *Controller) journalStart(running Running) {
	if c.journal == nil {
		return
	}
	techniques := make([]string, len(running.Request.Techniques))
	for i, t := range running.Request.Techniques {
		techniques[i] = t.String()
	}
	entry := journal.Entry{
		ID:         running.RunID,
		Objective:  running.Request.Objective,
		Target:     running.Request.Target.String(),
		Techniques: techniques,
		Model:      c.pipeline.ModelName(),
		StartedAt:  running.StartedAt,
	}
	if err := c.journal.RunStarted(context.Background(), entry); err != nil {
		c.logger.Warn("⚠️ Journal write failed for run %s: %v", running.RunID, err)
	}
}

// finish records metrics and the journal entry for a finished run.
func (c *Controller) finish(running Running, result *prompt.Result, stage chain.Stage, err error, finishedAt time.Time) {
	duration := finishedAt.Sub(running.StartedAt)

	entry := journal.Entry{ID: running.RunID, FinishedAt: &finishedAt}
	switch {
	case err == nil:
		c.recorder.ObserveRun(metrics.OutcomeComplete, "", duration)
		entry.Status = journal.StatusComplete
		if result.EvaluationReport != nil {
			total := int(result.EvaluationReport.TotalScore)
			c.recorder.ObserveScore(total)
			entry.TotalScore = &total
		}
		c.logger.Info("✅ Run %s complete in %s", running.RunID, duration.Round(time.Millisecond))
	case errors.Is(err, ErrRunCanceled):
		c.recorder.ObserveRun(metrics.OutcomeCanceled, string(stage), duration)
		entry.Status = journal.StatusFailed
		entry.Error = err.Error()
		c.logger.Warn("🛑 Run %s canceled during %s", running.RunID, stage)
	default:
		c.recorder.ObserveRun(metrics.OutcomeFailed, string(stage), duration)
		entry.Status = journal.StatusFailed
		entry.Error = err.Error()
		c.logger.Error("❌ Run %s failed during %s: %v", running.RunID, stage, err)
	}

	if c.journal == nil {
		return
	}
	if jerr := c.journal.RunFinished(context.Background(), entry); jerr != nil {
		c.logger.Warn("⚠️ Journal write failed for run %s: %v", running.RunID, jerr)
	}
}
