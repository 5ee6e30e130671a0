// Package sqlite provides a SQLite-backed graph store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/graph"
)

// Store implements graph.Store on a SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Config holds configuration for the SQLite graph store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string
}

// NewStore opens (and if needed initializes) the graph store.
func NewStore(c Config, logger *zap.Logger) (*Store, error) {
	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS graph_nodes (
			user_id TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			PRIMARY KEY (user_id, agent_id, run_id, name, type)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating nodes table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS graph_edges (
			user_id TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			target TEXT NOT NULL,
			relationship TEXT NOT NULL,
			confidence REAL NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, agent_id, run_id, source, target, relationship)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating edges table: %w", err)
	}

	logger.Info("sqlite graph store initialized",
		zap.String("db_path", c.DBPath),
	)

	return &Store{db: db, logger: logger}, nil
}

// UpsertNode inserts the node if its natural key is new; otherwise a no-op.
func (s *Store) UpsertNode(ctx context.Context, node graph.Node) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graph_nodes(user_id, agent_id, run_id, name, type)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, agent_id, run_id, name, type) DO NOTHING`,
		node.UserID, node.AgentID, node.RunID, node.Name, node.Type,
	)
	if err != nil {
		return fmt.Errorf("upserting node %q: %w", node.Name, err)
	}
	return nil
}

// UpsertEdge inserts the edge or, when the natural key exists, raises its
// confidence. Confidence never decreases and caps at 1.0.
func (s *Store) UpsertEdge(ctx context.Context, edge graph.Edge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graph_edges(user_id, agent_id, run_id, source, target, relationship, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, agent_id, run_id, source, target, relationship) DO UPDATE SET
			confidence = MIN(1.0, MAX(confidence, excluded.confidence) + 0.1)`,
		edge.UserID, edge.AgentID, edge.RunID, edge.Source, edge.Target,
		edge.Relationship, edge.Confidence, edge.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting edge %s-[%s]->%s: %w", edge.Source, edge.Relationship, edge.Target, err)
	}
	return nil
}

// Neighbors returns edges reachable from the named entity within the
// scope, following edges in either direction up to depth hops.
func (s *Store) Neighbors(ctx context.Context, userID, agentID, runID, name string, depth int) ([]graph.Edge, error) {
	if depth <= 0 {
		depth = 1
	}

	frontier := map[string]bool{name: true}
	seen := map[string]bool{}
	var edges []graph.Edge

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		next := map[string]bool{}

		for entity := range frontier {
			if seen[entity] {
				continue
			}
			seen[entity] = true

			rows, err := s.db.QueryContext(ctx, `
				SELECT source, target, relationship, confidence, created_at
				FROM graph_edges
				WHERE user_id = ? AND agent_id = ? AND run_id = ?
					AND (source = ? OR target = ?)
				ORDER BY confidence DESC`,
				userID, agentID, runID, entity, entity,
			)
			if err != nil {
				return nil, fmt.Errorf("querying neighbors of %q: %w", entity, err)
			}

			for rows.Next() {
				edge := graph.Edge{UserID: userID, AgentID: agentID, RunID: runID}
				if err := rows.Scan(&edge.Source, &edge.Target, &edge.Relationship, &edge.Confidence, &edge.CreatedAt); err != nil {
					rows.Close()
					return nil, fmt.Errorf("scanning edge: %w", err)
				}
				edges = append(edges, edge)

				if !seen[edge.Source] {
					next[edge.Source] = true
				}
				if !seen[edge.Target] {
					next[edge.Target] = true
				}
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return nil, fmt.Errorf("iterating edges: %w", err)
			}
			rows.Close()
		}

		frontier = next
	}

	return dedupeEdges(edges), nil
}

// Nodes returns all entity nodes in the scope.
func (s *Store) Nodes(ctx context.Context, userID, agentID, runID string) ([]graph.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type FROM graph_nodes
		WHERE user_id = ? AND agent_id = ? AND run_id = ?
		ORDER BY name`,
		userID, agentID, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []graph.Node
	for rows.Next() {
		node := graph.Node{UserID: userID, AgentID: agentID, RunID: runID}
		if err := rows.Scan(&node.Name, &node.Type); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}

	return nodes, nil
}

// DeleteScope removes all nodes and edges belonging to the scope.
func (s *Store) DeleteScope(ctx context.Context, userID, agentID, runID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM graph_edges WHERE user_id = ? AND agent_id = ? AND run_id = ?`,
		userID, agentID, runID,
	); err != nil {
		return fmt.Errorf("deleting edges: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM graph_nodes WHERE user_id = ? AND agent_id = ? AND run_id = ?`,
		userID, agentID, runID,
	); err != nil {
		return fmt.Errorf("deleting nodes: %w", err)
	}

	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func dedupeEdges(edges []graph.Edge) []graph.Edge {
	type key struct{ source, target, relationship string }
	seen := map[key]bool{}
	out := edges[:0]
	for _, edge := range edges {
		k := key{edge.Source, edge.Target, edge.Relationship}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, edge)
	}
	return out
}

var _ graph.Store = (*Store)(nil)
