// Package llm provides completion callers for the model providers engram
// can consolidate memories with.
//
// The pipeline only ever needs "prompt in, text out": callers return the
// raw model text and the memory engine validates it as untrusted input.
// Transport failures are wrapped in ErrTransport so callers can tell them
// apart from malformed-output errors raised during validation.
package llm

import (
	"context"
	"errors"
	"time"
)

// CallFunc is the signature for an LLM inference call.
type CallFunc func(ctx context.Context, prompt string) (string, error)

// ErrTransport is returned when the provider could not be reached or
// returned a non-success status. It is distinct from malformed-output
// errors, which are raised by the caller-side validators.
var ErrTransport = errors.New("llm transport error")

// DefaultTimeout bounds a single completion call when the caller's context
// carries no earlier deadline.
const DefaultTimeout = 30 * time.Second

// Config holds configuration for creating an LLM caller.
type Config struct {
	// Provider selects the backend: "openai", "anthropic", or "ollama".
	Provider string

	// Model is the model identifier, e.g. "gpt-4o-mini".
	// Each provider has a default when empty.
	Model string

	// APIKey is the explicit API key. Falls back to the provider's
	// conventional environment variable when empty.
	APIKey string

	// BaseURL overrides the provider base URL.
	BaseURL string

	// Timeout bounds each call. Defaults to DefaultTimeout when zero.
	Timeout time.Duration
}
