package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/vector"
)

// Graph re-ranking weights. Semantic similarity dominates; graph proximity
// nudges, it never overturns a clear semantic winner on its own.
const (
	semanticWeight = 0.8
	graphWeight    = 0.2

	// graphAnchorLimit caps how many top results seed entity anchors.
	graphAnchorLimit = 3
)

// SearchOptions tunes one Search call.
type SearchOptions struct {
	// Limit caps returned results. Defaults to DefaultSearchLimit.
	Limit int

	// MinScore drops results scoring below it.
	MinScore float32

	// Metadata entries must all match a result's metadata.
	Metadata map[string]string

	// ExpandGraph re-ranks results using one hop of graph traversal from
	// entities mentioned in the top results. Ignored when no graph store
	// is configured.
	ExpandGraph bool

	// IncludeDeleted lets soft-deleted memories surface in results.
	IncludeDeleted bool
}

// Search returns the scope's memories most similar to the query, best
// first. Soft-deleted memories are excluded unless IncludeDeleted asks
// for them; in-flight drafts never surface.
func (e *Engine) Search(ctx context.Context, query string, scope Scope, opts SearchOptions) ([]SearchResult, error) {
	if scope.IsZero() {
		return nil, fmt.Errorf("%w: at least one of user_id, agent_id or run_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrRetrieval, err)
	}

	filter := vector.Filter{
		UserID:   scope.UserID,
		AgentID:  scope.AgentID,
		RunID:    scope.RunID,
		Metadata: opts.Metadata,
		State:    vector.StateActive,
	}
	if opts.IncludeDeleted {
		filter.IncludeDeleted = true
		filter.State = ""
	}

	hits, err := e.vectors.Search(ctx, embedding, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: searching memories: %v", ErrRetrieval, err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < opts.MinScore {
			continue
		}
		if hit.Payload.State == vector.StateProcessing {
			continue
		}
		results = append(results, SearchResult{
			Memory: recordToMemory(hit.Record),
			Score:  hit.Score,
		})
	}

	if opts.ExpandGraph && e.graphStore != nil {
		results = e.rerankWithGraph(ctx, scope, results)
	}

	return results, nil
}

// rerankWithGraph boosts results mentioning entities one hop away from
// entities mentioned in the top results. Best-effort: a broken graph store
// leaves the semantic ranking untouched.
func (e *Engine) rerankWithGraph(ctx context.Context, scope Scope, results []SearchResult) []SearchResult {
	if len(results) == 0 {
		return results
	}

	nodes, err := e.graphStore.Nodes(ctx, scope.UserID, scope.AgentID, scope.RunID)
	if err != nil {
		e.logger.Warn("graph re-rank skipped: listing nodes failed", zap.Error(err))
		return results
	}
	if len(nodes) == 0 {
		return results
	}

	anchors := map[string]bool{}
	for i, r := range results {
		if i >= graphAnchorLimit {
			break
		}
		for _, node := range nodes {
			if containsFold(r.Text, node.Name) {
				anchors[node.Name] = true
			}
		}
	}

	neighborhood := map[string]bool{}
	for name := range anchors {
		edges, err := e.graphStore.Neighbors(ctx, scope.UserID, scope.AgentID, scope.RunID, name, 1)
		if err != nil {
			e.logger.Warn("graph re-rank skipped: neighbor query failed",
				zap.String("entity", name),
				zap.Error(err),
			)
			return results
		}
		for _, edge := range edges {
			neighborhood[edge.Source] = true
			neighborhood[edge.Target] = true
		}
	}
	if len(neighborhood) == 0 {
		return results
	}

	for i := range results {
		proximity := float32(0)
		for name := range neighborhood {
			if containsFold(results[i].Text, name) {
				proximity = 1
				break
			}
		}
		results[i].Score = semanticWeight*results[i].Score + graphWeight*proximity
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
