package eventstream

import (
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoryMutated is emitted after a memory mutation commits.
	EventTypeMemoryMutated = "engram.memory.mutated"
)

// MemoryMutatedEvent is a transport-neutral event payload for one applied
// memory mutation. Consumers can rebuild downstream indexes or analytics
// from this stream without reading the primary store.
type MemoryMutatedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Scope         EventScope  `json:"scope"`
	Mutation      EventChange `json:"mutation"`
}

// EventScope identifies the owner partition the mutation happened in.
type EventScope struct {
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

// EventChange captures what changed.
type EventChange struct {
	MemoryID  string `json:"memory_id"`
	Event     string `json:"event"`
	PrevValue string `json:"prev_value,omitempty"`
	NewValue  string `json:"new_value,omitempty"`
}
