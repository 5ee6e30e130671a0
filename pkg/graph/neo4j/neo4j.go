// Package neo4j provides a Neo4j-backed graph store.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/graph"
)

// Store implements graph.Store on a Neo4j database.
type Store struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// Config holds configuration for the Neo4j graph store.
type Config struct {
	// URI is the bolt URI, e.g. "bolt://localhost:7687".
	URI string

	// Username and Password authenticate against the database.
	Username string
	Password string
}

// NewStore connects to Neo4j and verifies connectivity.
func NewStore(ctx context.Context, c Config, logger *zap.Logger) (*Store, error) {
	if c.URI == "" {
		return nil, fmt.Errorf("neo4j URI is required")
	}

	driver, err := neo4j.NewDriverWithContext(c.URI, neo4j.BasicAuth(c.Username, c.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}

	logger.Info("neo4j graph store initialized",
		zap.String("uri", c.URI),
	)

	return &Store{driver: driver, logger: logger}, nil
}

// UpsertNode merges the entity node on its natural key.
func (s *Store) UpsertNode(ctx context.Context, node graph.Node) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (e:Entity {user_id: $userID, agent_id: $agentID, run_id: $runID, name: $name, type: $type})
		ON CREATE SET e.created = timestamp()
	`

	_, err := session.Run(ctx, query, map[string]any{
		"userID":  node.UserID,
		"agentID": node.AgentID,
		"runID":   node.RunID,
		"name":    node.Name,
		"type":    node.Type,
	})
	if err != nil {
		return fmt.Errorf("upserting node %q: %w", node.Name, err)
	}

	return nil
}

// UpsertEdge merges the relation on its natural key, raising confidence on
// repeated confirmation. Confidence never decreases and caps at 1.0.
func (s *Store) UpsertEdge(ctx context.Context, edge graph.Edge) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (src:Entity {user_id: $userID, agent_id: $agentID, run_id: $runID, name: $source})
		MATCH (dst:Entity {user_id: $userID, agent_id: $agentID, run_id: $runID, name: $target})
		MERGE (src)-[r:RELATES {relationship: $relationship}]->(dst)
		ON CREATE SET r.confidence = $confidence, r.created_at = $createdAt
		ON MATCH SET r.confidence = CASE
			WHEN r.confidence + 0.1 > 1.0 THEN 1.0
			ELSE CASE WHEN r.confidence > $confidence THEN r.confidence + 0.1 ELSE $confidence + 0.1 END
		END
	`

	_, err := session.Run(ctx, query, map[string]any{
		"userID":       edge.UserID,
		"agentID":      edge.AgentID,
		"runID":        edge.RunID,
		"source":       edge.Source,
		"target":       edge.Target,
		"relationship": edge.Relationship,
		"confidence":   edge.Confidence,
		"createdAt":    edge.CreatedAt.UTC().Unix(),
	})
	if err != nil {
		return fmt.Errorf("upserting edge %s-[%s]->%s: %w", edge.Source, edge.Relationship, edge.Target, err)
	}

	return nil
}

// Neighbors returns edges within depth hops of the named entity.
func (s *Store) Neighbors(ctx context.Context, userID, agentID, runID, name string, depth int) ([]graph.Edge, error) {
	if depth <= 0 {
		depth = 1
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (e:Entity {user_id: $userID, agent_id: $agentID, run_id: $runID, name: $name})
		MATCH (e)-[rels:RELATES*1..%d]-(other:Entity)
		UNWIND rels AS r
		MATCH (src:Entity)-[r]->(dst:Entity)
		RETURN DISTINCT src.name AS source, dst.name AS target,
			r.relationship AS relationship, r.confidence AS confidence
	`, depth)

	result, err := session.Run(ctx, query, map[string]any{
		"userID":  userID,
		"agentID": agentID,
		"runID":   runID,
		"name":    name,
	})
	if err != nil {
		return nil, fmt.Errorf("querying neighbors of %q: %w", name, err)
	}

	var edges []graph.Edge
	for result.Next(ctx) {
		record := result.Record()
		edge := graph.Edge{UserID: userID, AgentID: agentID, RunID: runID}
		if v, ok := record.Get("source"); ok {
			edge.Source, _ = v.(string)
		}
		if v, ok := record.Get("target"); ok {
			edge.Target, _ = v.(string)
		}
		if v, ok := record.Get("relationship"); ok {
			edge.Relationship, _ = v.(string)
		}
		if v, ok := record.Get("confidence"); ok {
			edge.Confidence, _ = v.(float64)
		}
		edges = append(edges, edge)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterating neighbors: %w", err)
	}

	return edges, nil
}

// Nodes returns all entity nodes in the scope.
func (s *Store) Nodes(ctx context.Context, userID, agentID, runID string) ([]graph.Node, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity {user_id: $userID, agent_id: $agentID, run_id: $runID})
		RETURN e.name AS name, e.type AS type
		ORDER BY e.name
	`

	result, err := session.Run(ctx, query, map[string]any{
		"userID":  userID,
		"agentID": agentID,
		"runID":   runID,
	})
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}

	var nodes []graph.Node
	for result.Next(ctx) {
		record := result.Record()
		node := graph.Node{UserID: userID, AgentID: agentID, RunID: runID}
		if v, ok := record.Get("name"); ok {
			node.Name, _ = v.(string)
		}
		if v, ok := record.Get("type"); ok {
			node.Type, _ = v.(string)
		}
		nodes = append(nodes, node)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}

	return nodes, nil
}

// DeleteScope removes all nodes and edges belonging to the scope.
func (s *Store) DeleteScope(ctx context.Context, userID, agentID, runID string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity {user_id: $userID, agent_id: $agentID, run_id: $runID})
		DETACH DELETE e
	`

	_, err := session.Run(ctx, query, map[string]any{
		"userID":  userID,
		"agentID": agentID,
		"runID":   runID,
	})
	if err != nil {
		return fmt.Errorf("deleting scope: %w", err)
	}

	return nil
}

// Close releases the driver connection pool.
func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

var _ graph.Store = (*Store)(nil)
