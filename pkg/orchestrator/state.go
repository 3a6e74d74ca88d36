package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"promptarchitect/pkg/chain"
	"promptarchitect/pkg/prompt"
)

// Phase names a controller state.
type Phase string

// Controller phases.
const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseComplete Phase = "complete"
	PhaseFailed   Phase = "failed"
)

// Progress checkpoints and the status text shown with them.
const (
	ProgressIdle       = 0
	ProgressDrafting   = 10
	ProgressEvaluating = 30
	ProgressRefining   = 60
	ProgressFinalizing = 100

	StatusDrafting   = "Architecting initial draft structure..."
	StatusEvaluating = "Running 35-criteria Evaluation Chain..."
	StatusRefining   = "Processing Refinement Chain & feedback loops..."
	StatusFinalizing = "Finalizing the ultimate prompt..."

	// FallbackMessage is shown when a failure carries no text of its own.
	FallbackMessage = "An unexpected error occurred during the engineering chain."
)

var (
	// ErrRunInProgress is returned when an operation needs the controller to be idle or finished.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrRunCanceled is the failure recorded for a run stopped by Cancel or by its caller's context.
	ErrRunCanceled = errors.New("run canceled")
	// ErrNoFailedRun is returned by Retry when the last run did not fail.
	ErrNoFailedRun = errors.New("no failed run to retry")
	// ErrNotRunning is returned by Cancel when nothing is running.
	ErrNotRunning = errors.New("no run in progress")
	// ErrInvalidTransition is returned for a state change the transition table forbids.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// State is the controller's current state. Its concrete type is one of Idle, Running, Complete or Failed.
type State interface {
	Phase() Phase
	isState()
}

// Idle means no run has started since the last session reset.
type Idle struct{}

// Running is an in-flight run.
type Running struct {
	StartedAt time.Time
	RunID     string
	Stage     chain.Stage
	Status    string
	Request   prompt.Request
	Progress  int
}

// Complete holds the result of a successful run.
type Complete struct {
	FinishedAt time.Time
	Result     *prompt.Result
	RunID      string
	Request    prompt.Request
}

// Failed holds the failure of the last run.
type Failed struct {
	FinishedAt time.Time
	Err        error
	RunID      string
	Stage      chain.Stage
	Message    string
	Request    prompt.Request
}

// Phase implements State.
func (Idle) Phase() Phase { return PhaseIdle }

// Phase implements State.
func (Running) Phase() Phase { return PhaseRunning }

// Phase implements State.
func (Complete) Phase() Phase { return PhaseComplete }

// Phase implements State.
func (Failed) Phase() Phase { return PhaseFailed }

func (Idle) isState()     {}
func (Running) isState()  {}
func (Complete) isState() {}
func (Failed) isState()   {}

// TransitionTable lists the phases reachable from each phase.
type TransitionTable map[Phase][]Phase

// ValidTransitions is the controller's transition table.
//
//nolint:gochecknoglobals // Static transition table
var ValidTransitions = TransitionTable{
	PhaseIdle:     {PhaseRunning},
	PhaseRunning:  {PhaseRunning, PhaseComplete, PhaseFailed},
	PhaseComplete: {PhaseIdle},
	PhaseFailed:   {PhaseIdle, PhaseRunning},
}

// Allows reports whether from -> to is permitted.
func (t TransitionTable) Allows(from, to Phase) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (t TransitionTable) check(from, to Phase) error {
	if !t.Allows(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// failureMessage is the user-facing text for err.
func failureMessage(err error) string {
	if err == nil || err.Error() == "" {
		return FallbackMessage
	}
	return err.Error()
}
