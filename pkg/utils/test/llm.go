package testutils

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedLLM is a test LLM caller that plays back canned responses in
// order and records every prompt it receives. Its Call method satisfies
// llm.CallFunc.
type ScriptedLLM struct {
	mu sync.Mutex

	// Responses are returned one per call, in order. When exhausted,
	// Call returns Fallback.
	Responses []string

	// Fallback is returned once Responses run out. Defaults to an empty
	// JSON object.
	Fallback string

	// Err, when set, is returned by every call.
	Err error

	// Prompts accumulates every prompt passed to Call.
	Prompts []string

	next int
}

func NewScriptedLLM(responses ...string) *ScriptedLLM {
	return &ScriptedLLM{
		Responses: responses,
		Fallback:  "{}",
	}
}

func (s *ScriptedLLM) Call(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Prompts = append(s.Prompts, prompt)

	if s.Err != nil {
		return "", fmt.Errorf("mock llm failure: %w", s.Err)
	}

	if s.next < len(s.Responses) {
		response := s.Responses[s.next]
		s.next++
		return response, nil
	}

	return s.Fallback, nil
}
