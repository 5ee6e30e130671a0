package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/engram/pkg/vector"
)

// maxRetrievalConcurrency bounds parallel embed+search calls during
// candidate retrieval.
const maxRetrievalConcurrency = 4

// candidate is one extracted fact with its embedding and the stored
// memories retrieved as its potential reconciliation targets.
type candidate struct {
	text      string
	hash      string
	embedding []float32
	neighbors []vector.SearchResult
}

// retrieveCandidates embeds each fact and fetches its nearest stored
// memories within the scope. Retrieval runs facts in parallel with bounded
// concurrency; any failure is fatal for the whole add (ErrRetrieval), since
// deciding against a partial view risks duplicate memories.
func (e *Engine) retrieveCandidates(ctx context.Context, facts []string, scope Scope) ([]candidate, error) {
	candidates := make([]candidate, len(facts))
	errs := make([]error, len(facts))

	filter := vector.Filter{
		UserID:  scope.UserID,
		AgentID: scope.AgentID,
		RunID:   scope.RunID,
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxRetrievalConcurrency)

	for i, fact := range facts {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, fact string) {
			defer wg.Done()
			defer func() { <-sem }()

			embedding, err := e.embedder.Embed(ctx, fact)
			if err != nil {
				errs[i] = fmt.Errorf("embedding fact: %w", err)
				return
			}

			neighbors, err := e.vectors.Search(ctx, embedding, filter, e.policy.TopK)
			if err != nil {
				errs[i] = fmt.Errorf("searching neighbors: %w", err)
				return
			}

			kept := neighbors[:0]
			for _, n := range neighbors {
				if n.Score >= e.policy.Threshold {
					kept = append(kept, n)
				}
			}

			candidates[i] = candidate{
				text:      fact,
				hash:      ContentHash(fact),
				embedding: embedding,
				neighbors: kept,
			}
		}(i, fact)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
		}
	}

	return candidates, nil
}
