// Package history provides the append-only audit ledger for memory
// mutations.
//
// Every applied mutation produces exactly one entry. Entries are never
// updated or deleted; replaying them in order reconstructs the full
// lifecycle of a memory.
package history

import (
	"context"
	"time"
)

// Actor identifies what produced a ledger entry.
const (
	ActorSystem  = "system"
	ActorUser    = "user"
	ActorSweeper = "sweeper"
)

// Entry is one immutable audit record.
type Entry struct {
	ID        string    `json:"id"`
	MemoryID  string    `json:"memory_id"`
	Event     string    `json:"event"`
	PrevValue string    `json:"prev_value,omitempty"`
	NewValue  string    `json:"new_value,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Actor     string    `json:"actor"`
}

// Store is the append-only ledger backend. It exposes no update or delete
// operations.
type Store interface {
	// Append writes one entry to the ledger.
	Append(ctx context.Context, entry Entry) error

	// Query returns all entries for a memory, oldest first.
	Query(ctx context.Context, memoryID string) ([]Entry, error)

	// Reset removes all entries. Used only by Engine.Reset.
	Reset(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
