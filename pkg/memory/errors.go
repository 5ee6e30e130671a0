package memory

import "errors"

var (
	// ErrInvalidInput is returned for malformed caller input. It is fatal
	// and rejected before any LLM or store call is made.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExtraction is returned when the LLM produced unparsable facts
	// after the retry budget was spent. It is non-fatal: the add call
	// proceeds with an empty candidate list.
	ErrExtraction = errors.New("fact extraction failed")

	// ErrRetrieval is returned when the embedder or vector store is
	// unreachable. It is fatal for the whole add call.
	ErrRetrieval = errors.New("candidate retrieval failed")

	// ErrDecision is returned when the LLM decision output is malformed
	// or references an unknown memory. Recovered by downgrading the
	// affected candidate to a conservative ADD.
	ErrDecision = errors.New("invalid decision")

	// ErrConflict is returned when a concurrent writer raced on the same
	// memory id and the bounded retry budget was spent. Surfaced per
	// candidate without failing siblings.
	ErrConflict = errors.New("concurrent mutation conflict")
)
