package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/engram/pkg/graph"
)

// MockGraphStore is an in-memory graph store.
type MockGraphStore struct {
	mu    sync.Mutex
	nodes []graph.Node
	edges []graph.Edge
}

func NewMockGraphStore() *MockGraphStore {
	return &MockGraphStore{}
}

func (m *MockGraphStore) UpsertNode(_ context.Context, node graph.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.nodes {
		if existing == node {
			return nil
		}
	}
	m.nodes = append(m.nodes, node)
	return nil
}

func (m *MockGraphStore) UpsertEdge(_ context.Context, edge graph.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.edges {
		if existing.UserID == edge.UserID && existing.AgentID == edge.AgentID &&
			existing.RunID == edge.RunID && existing.Source == edge.Source &&
			existing.Target == edge.Target && existing.Relationship == edge.Relationship {
			raised := existing.Confidence + 0.1
			if edge.Confidence > existing.Confidence {
				raised = edge.Confidence + 0.1
			}
			if raised > 1.0 {
				raised = 1.0
			}
			m.edges[i].Confidence = raised
			return nil
		}
	}
	m.edges = append(m.edges, edge)
	return nil
}

func (m *MockGraphStore) Neighbors(_ context.Context, userID, agentID, runID, name string, depth int) ([]graph.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if depth <= 0 {
		depth = 1
	}

	frontier := map[string]bool{name: true}
	seen := map[string]bool{}
	var out []graph.Edge

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		next := map[string]bool{}
		for entity := range frontier {
			if seen[entity] {
				continue
			}
			seen[entity] = true

			for _, edge := range m.edges {
				if edge.UserID != userID || edge.AgentID != agentID || edge.RunID != runID {
					continue
				}
				if edge.Source != entity && edge.Target != entity {
					continue
				}
				out = append(out, edge)
				if !seen[edge.Source] {
					next[edge.Source] = true
				}
				if !seen[edge.Target] {
					next[edge.Target] = true
				}
			}
		}
		frontier = next
	}

	return dedupe(out), nil
}

func (m *MockGraphStore) Nodes(_ context.Context, userID, agentID, runID string) ([]graph.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []graph.Node
	for _, node := range m.nodes {
		if node.UserID == userID && node.AgentID == agentID && node.RunID == runID {
			out = append(out, node)
		}
	}
	return out, nil
}

func (m *MockGraphStore) DeleteScope(_ context.Context, userID, agentID, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	nodes := m.nodes[:0]
	for _, node := range m.nodes {
		if node.UserID != userID || node.AgentID != agentID || node.RunID != runID {
			nodes = append(nodes, node)
		}
	}
	m.nodes = nodes

	edges := m.edges[:0]
	for _, edge := range m.edges {
		if edge.UserID != userID || edge.AgentID != agentID || edge.RunID != runID {
			edges = append(edges, edge)
		}
	}
	m.edges = edges

	return nil
}

func (m *MockGraphStore) Close() error {
	return nil
}

// Edges returns all stored edges.
func (m *MockGraphStore) Edges() []graph.Edge {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]graph.Edge, len(m.edges))
	copy(out, m.edges)
	return out
}

func dedupe(edges []graph.Edge) []graph.Edge {
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

var _ graph.Store = (*MockGraphStore)(nil)
