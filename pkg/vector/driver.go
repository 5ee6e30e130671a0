// Package vector provides interfaces and implementations for scoped vector
// storage of memories.
package vector

import (
	"context"
	"time"
)

// Draft lifecycle states for a stored memory record. New records land in
// processing before becoming active; the recovery sweep finalizes records
// stuck in processing after a crash.
const (
	StateProcessing = "processing"
	StateActive     = "active"
	StateDeleted    = "deleted"
)

// Payload carries everything stored alongside a memory's embedding.
type Payload struct {
	// Data is the canonical memory text.
	Data string `json:"data"`

	// Hash is the content hash of Data, for exact-duplicate detection.
	Hash string `json:"hash"`

	// UserID, AgentID and RunID form the owning scope. Every read and
	// write is filtered to a scope; records never cross scopes.
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`

	// Metadata is an open key/value map (tags, categories, source).
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Deleted marks a soft-deleted record. Soft-deleted records are
	// excluded from search unless the filter asks for them.
	Deleted bool `json:"deleted,omitempty"`

	// State is the draft lifecycle state (see the State constants).
	State string `json:"state,omitempty"`
}

// Record is a stored memory with its embedding and payload.
type Record struct {
	ID        string
	Embedding []float32
	Payload   Payload
}

// SearchResult pairs a record with its similarity score, in [0,1].
type SearchResult struct {
	Record
	Score float32
}

// Filter restricts reads to a scope and optional metadata values.
type Filter struct {
	UserID  string
	AgentID string
	RunID   string

	// Metadata entries must all match the record's payload metadata.
	Metadata map[string]string

	// IncludeDeleted includes soft-deleted records in results.
	IncludeDeleted bool

	// State, when set, restricts results to records in that draft state.
	State string
}

// Driver handles storage and retrieval of memory records.
type Driver interface {
	// Upsert stores records, replacing any existing record with the
	// same ID.
	Upsert(ctx context.Context, records []Record) error

	// Search finds the topK records most similar to the embedding,
	// restricted by the filter. Results are ordered by descending
	// score; ties break toward the most recently updated record.
	Search(ctx context.Context, embedding []float32, filter Filter, topK int) ([]SearchResult, error)

	// Get retrieves a single record by ID. Returns ErrNotFound if the
	// record does not exist.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns all records matching the filter.
	List(ctx context.Context, filter Filter) ([]Record, error)

	// Delete removes records by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}

// Matches reports whether the payload satisfies the filter. Shared by
// driver implementations that filter in process.
func (f Filter) Matches(p Payload) bool {
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.AgentID != "" && p.AgentID != f.AgentID {
		return false
	}
	if f.RunID != "" && p.RunID != f.RunID {
		return false
	}
	if !f.IncludeDeleted && p.Deleted {
		return false
	}
	if f.State != "" && p.State != f.State {
		return false
	}
	for k, v := range f.Metadata {
		if p.Metadata[k] != v {
			return false
		}
	}
	return true
}
