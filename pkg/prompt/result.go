package prompt

import (
	"fmt"
	"strings"
)

// Draft is the drafter's output.
type Draft struct {
	DraftPrompt  string `json:"draftPrompt"`
	InitialNotes string `json:"initialNotes"`
}

// Result is the refined prompt together with the report it was refined against.
type Result struct {
	EvaluationReport    *EvaluationReport `json:"evaluationReport,omitempty"`
	EngineeredPrompt    string            `json:"engineeredPrompt"`
	ImplementationNotes string            `json:"implementationNotes"`
	DesignChoices       string            `json:"designChoices"`
	UsageGuidelines     string            `json:"usageGuidelines"`
	ExpectedOutputs     string            `json:"expectedOutputs"`
}

// Markdown renders the result for terminals and export.
func (r *Result) Markdown() string {
	var b strings.Builder

	b.WriteString("# Engineered Prompt\n\n")
	body := strings.TrimRight(r.EngineeredPrompt, "\n")
	fence := codeFence(body)
	b.WriteString(fence + "text\n")
	b.WriteString(body)
	b.WriteString("\n" + fence + "\n")

	section(&b, "Implementation Notes", r.ImplementationNotes)
	section(&b, "Design Choices", r.DesignChoices)
	section(&b, "Usage Guidelines", r.UsageGuidelines)
	section(&b, "Expected Outputs", r.ExpectedOutputs)

	if rep := r.EvaluationReport; rep != nil {
		fmt.Fprintf(&b, "\n## Evaluation Report\n\n**Total score:** %d / %d\n", rep.TotalScore, MaxTotal)
		if len(rep.CriteriaScores) > 0 {
			b.WriteString("\n| # | Criterion | Score | Strength | Improvement |\n|---|---|---|---|---|\n")
			for _, id := range rep.SortedIDs() {
				c := rep.CriteriaScores[id]
				fmt.Fprintf(&b, "| %s | %s | %d | %s | %s |\n",
					id, CriterionName(id), c.Score, cell(c.Strength), cell(c.Improvement))
			}
		}
		if len(rep.RefinementSuggestions) > 0 {
			b.WriteString("\n### Refinement Suggestions\n\n")
			for _, s := range rep.RefinementSuggestions {
				fmt.Fprintf(&b, "- %s\n", s)
			}
		}
	}
	return b.String()
}

// codeFence returns a backtick fence longer than any backtick run in body.
func codeFence(body string) string {
	longest, run := 0, 0
	for _, r := range body {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}

func section(b *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n%s\n", title, strings.TrimSpace(body))
}

// cell flattens text for a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
