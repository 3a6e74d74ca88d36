package chain

import (
	"fmt"
)

// Stage names a pipeline step. The value doubles as the llm operation tag and metric label.
type Stage string

// Pipeline stages in execution order.
const (
	StageDrafter   Stage = "drafter"
	StageEvaluator Stage = "evaluator"
	StageRefiner   Stage = "refiner"
)

// Stages lists the stages in execution order.
//
//nolint:gochecknoglobals // Fixed pipeline order
var Stages = []Stage{StageDrafter, StageEvaluator, StageRefiner}

// Kind classifies a stage failure.
type Kind int

const (
	// KindTransport means the model call itself failed.
	KindTransport Kind = iota + 1
	// KindResponse means the model replied but the reply was unusable.
	KindResponse
	// KindInput means the stage was given nothing to work on.
	KindInput
)

// String returns a lowercase name.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindResponse:
		return "response"
	case KindInput:
		return "input"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// StageError reports which stage failed and how.
type StageError struct {
	Err   error
	Stage Stage
	Kind  Kind
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

func transportErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Kind: KindTransport, Err: err}
}

func responseErr(stage Stage, format string, args ...any) error {
	return &StageError{Stage: stage, Kind: KindResponse, Err: fmt.Errorf(format, args...)}
}
