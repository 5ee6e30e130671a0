package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type factResponse struct {
	Facts []string `json:"facts"`
}

// extractFacts distills the normalized messages into candidate facts. An
// unparsable response earns exactly one retry with a stricter prompt; a
// second failure returns ErrExtraction, which callers treat as non-fatal
// (the add proceeds with zero candidates).
func (e *Engine) extractFacts(ctx context.Context, messages []Message) ([]string, error) {
	transcript := Transcript(messages)

	prompt := fmt.Sprintf(extractionPrompt, today(), transcript)
	if e.policy.ExtractionPrompt != "" {
		prompt = fmt.Sprintf("%s\n\nConversation:\n%s", e.policy.ExtractionPrompt, transcript)
	}

	facts, err := e.callForFacts(ctx, prompt)
	if err == nil {
		return facts, nil
	}

	e.logger.Warn("fact extraction response unparsable, retrying",
		zap.Error(err),
	)

	facts, retryErr := e.callForFacts(ctx, fmt.Sprintf(extractionRetryPrompt, transcript))
	if retryErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, retryErr)
	}

	return facts, nil
}

func (e *Engine) callForFacts(ctx context.Context, prompt string) ([]string, error) {
	response, err := e.llmCall(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("calling model: %w", err)
	}

	raw := extractJSON(response)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var parsed factResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshaling facts: %w", err)
	}

	facts := make([]string, 0, len(parsed.Facts))
	for _, fact := range parsed.Facts {
		fact = strings.TrimSpace(fact)
		if fact == "" {
			continue
		}
		facts = append(facts, fact)
	}

	return facts, nil
}
