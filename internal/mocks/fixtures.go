package mocks

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Stage operation tags, mirrored from the chain package to avoid an import cycle in tests.
const (
	OpDrafter   = "drafter"
	OpEvaluator = "evaluator"
	OpRefiner   = "refiner"
)

// DraftJSON is a well-formed drafter reply.
func DraftJSON(draftPrompt string) string {
	return mustJSON(map[string]string{
		"draftPrompt":  draftPrompt,
		"initialNotes": "Role first, then constraints.",
	})
}

// ReportJSON is a well-formed evaluator reply scoring every criterion with score.
func ReportJSON(score int) string {
	criteria := make(map[string]map[string]any, 35)
	for i := 1; i <= 35; i++ {
		criteria[strconv.Itoa(i)] = map[string]any{
			"score":       score,
			"strength":    fmt.Sprintf("strength %d", i),
			"improvement": fmt.Sprintf("improvement %d", i),
			"rationale":   fmt.Sprintf("rationale %d", i),
		}
	}
	return mustJSON(map[string]any{
		"criteriaScores":        criteria,
		"totalScore":            score * 35,
		"refinementSuggestions": []string{"Add an example", "Name the audience"},
	})
}

// ResultJSON is a well-formed refiner reply.
func ResultJSON(engineeredPrompt string) string {
	return mustJSON(map[string]string{
		"engineeredPrompt":    engineeredPrompt,
		"implementationNotes": "Applied the suggestions.",
		"designChoices":       "Sectioned layout.",
		"usageGuidelines":     "Paste as the system prompt.",
		"expectedOutputs":     "Focused, well structured replies.",
	})
}

// PipelineReplies scripts a successful run through all three stages.
func PipelineReplies() map[string]Reply {
	return map[string]Reply{
		OpDrafter:   {Content: DraftJSON("You are a sci-fi writing assistant.")},
		OpEvaluator: {Content: ReportJSON(4)},
		OpRefiner:   {Content: ResultJSON("You are an expert sci-fi writing partner.")},
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
