// Package prompt defines the data carried through the engineering pipeline: the user's
// request, the draft, the evaluation report and the final result.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyObjective is returned when a request has no objective.
var ErrEmptyObjective = errors.New("objective must not be empty")

// ModelTarget is the model family the engineered prompt is written for.
type ModelTarget int

// Model targets. TargetGeneric is the zero value.
const (
	TargetGeneric ModelTarget = iota
	TargetClaude
	TargetGPT
	TargetGemini
	TargetOpenSource
)

// AllTargets lists every target in display order.
//
//nolint:gochecknoglobals // Closed enum listing
var AllTargets = []ModelTarget{TargetClaude, TargetGPT, TargetGemini, TargetOpenSource, TargetGeneric}

// String returns the stable key.
func (t ModelTarget) String() string {
	switch t {
	case TargetClaude:
		return "claude"
	case TargetGPT:
		return "gpt"
	case TargetGemini:
		return "gemini"
	case TargetOpenSource:
		return "open_source"
	case TargetGeneric:
		return "generic"
	default:
		return fmt.Sprintf("ModelTarget(%d)", int(t))
	}
}

// Label returns the human-readable text sent to the model.
func (t ModelTarget) Label() string {
	switch t {
	case TargetClaude:
		return "Claude (HHH Focused)"
	case TargetGPT:
		return "GPT (Structured & Clear)"
	case TargetGemini:
		return "Gemini (Multimodal & Nuanced)"
	case TargetOpenSource:
		return "Open Source (Specific Formats)"
	case TargetGeneric:
		return "Generic/Universal"
	default:
		return t.String()
	}
}

// ParseModelTarget accepts a key or a label, case-insensitively.
func ParseModelTarget(s string) (ModelTarget, error) {
	s = strings.TrimSpace(s)
	for _, t := range AllTargets {
		if strings.EqualFold(s, t.String()) || strings.EqualFold(s, t.Label()) {
			return t, nil
		}
	}
	return TargetGeneric, fmt.Errorf("unknown model target %q", s)
}

// MarshalJSON encodes the key.
func (t ModelTarget) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a key or a label.
func (t *ModelTarget) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("model target must be a string: %w", err)
	}
	parsed, err := ParseModelTarget(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Technique is a prompting technique the drafter should apply.
type Technique int

// Techniques.
const (
	TechniqueFewShot Technique = iota + 1
	TechniqueChainOfThought
	TechniqueRolePlaying
	TechniqueXMLTagging
	TechniqueStepByStep
	TechniqueConstitutional
)

// AllTechniques lists every technique in display order.
//
//nolint:gochecknoglobals // Closed enum listing
var AllTechniques = []Technique{
	TechniqueFewShot,
	TechniqueChainOfThought,
	TechniqueRolePlaying,
	TechniqueXMLTagging,
	TechniqueStepByStep,
	TechniqueConstitutional,
}

// String returns the stable key.
func (t Technique) String() string {
	switch t {
	case TechniqueFewShot:
		return "few_shot"
	case TechniqueChainOfThought:
		return "chain_of_thought"
	case TechniqueRolePlaying:
		return "role_playing"
	case TechniqueXMLTagging:
		return "xml_tagging"
	case TechniqueStepByStep:
		return "step_by_step"
	case TechniqueConstitutional:
		return "constitutional"
	default:
		return fmt.Sprintf("Technique(%d)", int(t))
	}
}

// Label returns the human-readable text sent to the model.
func (t Technique) Label() string {
	switch t {
	case TechniqueFewShot:
		return "Few-Shot Learning"
	case TechniqueChainOfThought:
		return "Chain of Thought"
	case TechniqueRolePlaying:
		return "Expert Role-Playing"
	case TechniqueXMLTagging:
		return "XML Structuring"
	case TechniqueStepByStep:
		return "Step-by-Step Reasoning"
	case TechniqueConstitutional:
		return "Constitutional Guidelines"
	default:
		return t.String()
	}
}

// ParseTechnique accepts a key or a label, case-insensitively.
func ParseTechnique(s string) (Technique, error) {
	s = strings.TrimSpace(s)
	for _, t := range AllTechniques {
		if strings.EqualFold(s, t.String()) || strings.EqualFold(s, t.Label()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown technique %q", s)
}

// MarshalJSON encodes the key.
func (t Technique) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a key or a label.
func (t *Technique) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("technique must be a string: %w", err)
	}
	parsed, err := ParseTechnique(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Request is what the user asks the pipeline to engineer.
type Request struct {
	Objective  string      `json:"objective"`
	Context    string      `json:"context,omitempty"`
	Target     ModelTarget `json:"target"`
	Techniques []Technique `json:"techniques"`
}

// Validate checks the objective and removes duplicate techniques, keeping first-selection order.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Objective) == "" {
		return ErrEmptyObjective
	}
	r.Techniques = dedupe(r.Techniques)
	return nil
}

// Clone returns a deep copy.
func (r Request) Clone() Request {
	out := r
	if r.Techniques != nil {
		out.Techniques = append([]Technique(nil), r.Techniques...)
	}
	return out
}

// TechniqueLabels returns the labels of the selected techniques in order.
func (r *Request) TechniqueLabels() []string {
	labels := make([]string, len(r.Techniques))
	for i, t := range r.Techniques {
		labels[i] = t.Label()
	}
	return labels
}

// HasTechnique reports whether t is selected.
func (r *Request) HasTechnique(t Technique) bool {
	for _, selected := range r.Techniques {
		if selected == t {
			return true
		}
	}
	return false
}

// ToggleTechnique selects t, or deselects it if already selected.
func (r *Request) ToggleTechnique(t Technique) {
	for i, selected := range r.Techniques {
		if selected == t {
			r.Techniques = append(r.Techniques[:i:i], r.Techniques[i+1:]...)
			return
		}
	}
	r.Techniques = append(r.Techniques, t)
}

func dedupe(in []Technique) []Technique {
	if len(in) == 0 {
		return in
	}
	seen := make(map[Technique]bool, len(in))
	out := make([]Technique, 0, len(in))
	for _, t := range in {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
