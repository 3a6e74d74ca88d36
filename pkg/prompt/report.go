package prompt

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Rubric bounds.
const (
	CriteriaCount = 35
	MaxCriterion  = 5
	MaxTotal      = CriteriaCount * MaxCriterion
)

// Criteria is the evaluation rubric in id order; id "1" is Criteria[0].
//
//nolint:gochecknoglobals // Fixed rubric table
var Criteria = [CriteriaCount]string{
	"Clarity", "Context", "Task Definition", "Feasibility", "Ambiguity",
	"Model Fit", "Output Format", "Role/Persona", "Chain-of-Thought", "Structure",
	"Brevity/Detail", "Iteration", "Examples", "Uncertainty", "Hallucination",
	"Knowledge Boundaries", "Audience", "Style", "Memory", "Meta-Cognition",
	"Divergent Thinking", "Frame Switching", "Safe Failure", "Complexity", "Metrics",
	"Calibration", "Validation", "Effort", "Ethics", "Limitations",
	"Compression", "Cross-Disciplinary", "Emotional Resonance", "Risk", "Self-Repair",
}

// CriterionName maps a criterion id ("1".."35") to its name. Unknown ids return "Criterion <id>".
func CriterionName(id string) string {
	n, err := strconv.Atoi(id)
	if err != nil || n < 1 || n > CriteriaCount {
		return "Criterion " + id
	}
	return Criteria[n-1]
}

// Score is an integer score that also accepts integral JSON floats such as 4.0.
type Score int

// UnmarshalJSON decodes an integral JSON number.
func (s *Score) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("score must be a number: %w", err)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return fmt.Errorf("score must be an integer, got %s", string(data))
	}
	*s = Score(f)
	return nil
}

// CriterionScore is the evaluator's verdict on one criterion.
type CriterionScore struct {
	Score       Score  `json:"score"`
	Strength    string `json:"strength"`
	Improvement string `json:"improvement"`
	Rationale   string `json:"rationale"`
}

// EvaluationReport is the evaluator's structured output.
type EvaluationReport struct {
	CriteriaScores        map[string]CriterionScore `json:"criteriaScores"`
	TotalScore            Score                     `json:"totalScore"`
	RefinementSuggestions []string                  `json:"refinementSuggestions"`
}

// SortedIDs returns the criterion ids in numeric order; non-numeric ids sort last.
func (r *EvaluationReport) SortedIDs() []string {
	ids := make([]string, 0, len(r.CriteriaScores))
	for id := range r.CriteriaScores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}

// SumScores adds up the per-criterion scores.
func (r *EvaluationReport) SumScores() int {
	total := 0
	for _, c := range r.CriteriaScores {
		total += int(c.Score)
	}
	return total
}

// ValidationMode selects how much of the evaluator's report is checked.
type ValidationMode string

// Validation modes.
const (
	ValidationTrust  ValidationMode = "trust"
	ValidationShape  ValidationMode = "shape"
	ValidationStrict ValidationMode = "strict"
)

// ParseValidationMode parses a mode name; "" yields ValidationShape.
func ParseValidationMode(s string) (ValidationMode, error) {
	switch ValidationMode(s) {
	case "":
		return ValidationShape, nil
	case ValidationTrust, ValidationShape, ValidationStrict:
		return ValidationMode(s), nil
	default:
		return "", fmt.Errorf("unknown validation mode %q", s)
	}
}

// Validate checks the report according to mode.
func (r *EvaluationReport) Validate(mode ValidationMode) error {
	switch mode {
	case ValidationTrust:
		return nil
	case ValidationShape, "":
		if len(r.CriteriaScores) == 0 {
			return fmt.Errorf("criteriaScores is missing or empty")
		}
		return nil
	case ValidationStrict:
		return r.validateStrict()
	default:
		return fmt.Errorf("unknown validation mode %q", mode)
	}
}

func (r *EvaluationReport) validateStrict() error {
	if len(r.CriteriaScores) != CriteriaCount {
		return fmt.Errorf("expected %d criteria, got %d", CriteriaCount, len(r.CriteriaScores))
	}
	for i := 1; i <= CriteriaCount; i++ {
		id := strconv.Itoa(i)
		c, ok := r.CriteriaScores[id]
		if !ok {
			return fmt.Errorf("criterion %s (%s) is missing", id, Criteria[i-1])
		}
		if c.Score < 0 || c.Score > MaxCriterion {
			return fmt.Errorf("criterion %s score %d out of range 0..%d", id, c.Score, MaxCriterion)
		}
	}
	if r.TotalScore < 0 || r.TotalScore > MaxTotal {
		return fmt.Errorf("totalScore %d out of range 0..%d", r.TotalScore, MaxTotal)
	}
	if sum := r.SumScores(); sum != int(r.TotalScore) {
		return fmt.Errorf("totalScore %d does not match sum of criteria %d", r.TotalScore, sum)
	}
	return nil
}
