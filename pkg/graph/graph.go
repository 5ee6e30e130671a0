// Package graph provides the entity/relationship side-store built in
// parallel to the vector memory store.
//
// The builder extracts (entity, type) nodes and (source, relation, target)
// edges from normalized input via a model call and upserts them
// idempotently within a scope. Graph enrichment is best-effort: failures
// are logged and never block the vector-memory pipeline.
package graph

import (
	"context"
	"time"
)

// InitialConfidence is assigned to an edge on first observation. Repeated
// confirmation raises confidence; it never regresses.
const InitialConfidence = 0.5

// Node is an entity mention, keyed by (scope, name, type).
type Node struct {
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`

	Name string `json:"name"`
	Type string `json:"type"`
}

// Edge is a directed relation between two nodes in a scope, keyed by
// (scope, source, target, relationship).
type Edge struct {
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`

	Source       string    `json:"source"`
	Target       string    `json:"target"`
	Relationship string    `json:"relationship"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the graph backend. Upserts are idempotent on the natural key;
// an edge upsert for an existing key raises confidence rather than
// duplicating the edge.
type Store interface {
	UpsertNode(ctx context.Context, node Node) error
	UpsertEdge(ctx context.Context, edge Edge) error

	// Neighbors returns edges reachable from the named entity within
	// the scope, up to the given depth.
	Neighbors(ctx context.Context, userID, agentID, runID, name string, depth int) ([]Edge, error)

	// Nodes returns all entity nodes in the scope.
	Nodes(ctx context.Context, userID, agentID, runID string) ([]Node, error)

	// DeleteScope removes all nodes and edges belonging to the scope.
	DeleteScope(ctx context.Context, userID, agentID, runID string) error

	// Close releases resources held by the store.
	Close() error
}
