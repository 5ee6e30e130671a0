// Package memory implements the consolidation engine at the heart of engram.
//
// The engine takes unstructured conversation input, extracts atomic facts
// from it, reconciles each fact against previously stored memories using
// embedding retrieval plus an LLM decision step, and mutates a durable,
// scope-partitioned memory store. Every mutation is recorded in an
// append-only history ledger.
//
// All collaborators (embedder, LLM caller, vector store, history store,
// graph builder, event publisher) are passed in explicitly via [Options] so
// multiple independently configured engines can coexist in one process.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Event classifies how a candidate fact affected the store.
type Event string

const (
	// EventAdd means a novel fact created a new memory.
	EventAdd Event = "ADD"

	// EventUpdate means a fact was merged into an existing memory.
	EventUpdate Event = "UPDATE"

	// EventDelete means an existing memory was contradicted and retired.
	EventDelete Event = "DELETE"

	// EventNone means the fact was already represented; no mutation.
	EventNone Event = "NONE"
)

// Scope is the (user, agent, run) tuple that partitions all reads and
// writes. No operation may cross scopes. At least one component must be
// set.
type Scope struct {
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

// IsZero reports whether no scope component is set.
func (s Scope) IsZero() bool {
	return s.UserID == "" && s.AgentID == "" && s.RunID == ""
}

// Memory is the unit of durable knowledge: a single atomic fact owned by a
// scope, with a content hash for cheap exact-duplicate detection.
type Memory struct {
	ID        string            `json:"id"`
	Text      string            `json:"memory"`
	Scope     Scope             `json:"-"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Hash      string            `json:"hash"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at,omitempty"`
	Deleted   bool              `json:"-"`
}

// SearchResult pairs a memory with its similarity score for a query.
type SearchResult struct {
	Memory
	Score float32 `json:"score"`
}

// MutationResult is the per-candidate outcome of an Add call. Err is set
// when this candidate's mutation failed; sibling candidates are unaffected.
type MutationResult struct {
	ID       string `json:"id"`
	Text     string `json:"memory"`
	Event    Event  `json:"event"`
	PrevText string `json:"previous_memory,omitempty"`
	Err      error  `json:"-"`
}

// Relation describes a graph mutation made by the graph memory path.
type Relation struct {
	Source       string `json:"source"`
	Relationship string `json:"relationship"`
	Target       string `json:"target"`
}

// AddResult is the outcome of one Add call: per-candidate vector store
// mutations plus any graph relations written by the parallel graph path.
type AddResult struct {
	Results   []MutationResult `json:"results"`
	Relations []Relation       `json:"relations,omitempty"`
}

// ContentHash returns the hash used for exact-duplicate detection.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
