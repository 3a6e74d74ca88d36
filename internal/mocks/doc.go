// Package mocks provides shared mock implementations for testing.
//
// # Usage
//
//	import "promptarchitect/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    mockLLM := mocks.NewMockLLMClient()
//	    mockLLM.RespondByOperation(map[string]mocks.Reply{
//	        "drafter": {Content: `{"draftPrompt":"..."}`},
//	    })
//	    // Use mockLLM in test...
//	}
//
// Calls are tagged with the operation set by llm.WithOperation, so scripted replies
// can target a single pipeline stage.
package mocks
