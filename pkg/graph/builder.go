package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/llm"
)

// Builder extracts entities and relations from conversation text and
// merges them into the graph store.
type Builder struct {
	llmCall llm.CallFunc
	store   Store
	logger  *zap.Logger
}

// NewBuilder creates a graph memory builder.
func NewBuilder(llmCall llm.CallFunc, store Store, logger *zap.Logger) *Builder {
	return &Builder{
		llmCall: llmCall,
		store:   store,
		logger:  logger,
	}
}

// Relation is one extracted (source, relationship, target) triple.
type Relation struct {
	Source       string `json:"source"`
	Relationship string `json:"relationship"`
	Target       string `json:"target"`
}

type extraction struct {
	Entities []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"entities"`
	Relations []Relation `json:"relations"`
}

// Process extracts entities and relations from the text and upserts them
// into the store within the given scope. The returned relations describe
// what was written. Errors are returned for logging by the caller; the
// vector pipeline never depends on this succeeding.
func (b *Builder) Process(ctx context.Context, userID, agentID, runID, text string) ([]Relation, error) {
	prompt := buildExtractionPrompt(userID, text)

	response, err := b.llmCall(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("graph extraction call: %w", err)
	}

	parsed, err := parseExtraction(response)
	if err != nil {
		return nil, fmt.Errorf("graph extraction parse: %w", err)
	}

	types := map[string]string{}
	for _, entity := range parsed.Entities {
		if entity.Name == "" {
			continue
		}
		types[entity.Name] = entity.Type

		node := Node{
			UserID:  userID,
			AgentID: agentID,
			RunID:   runID,
			Name:    entity.Name,
			Type:    entity.Type,
		}
		if err := b.store.UpsertNode(ctx, node); err != nil {
			return nil, fmt.Errorf("upserting node %q: %w", entity.Name, err)
		}
	}

	var written []Relation
	now := time.Now().UTC()
	for _, rel := range parsed.Relations {
		if rel.Source == "" || rel.Target == "" || rel.Relationship == "" {
			b.logger.Debug("skipping incomplete relation",
				zap.String("source", rel.Source),
				zap.String("target", rel.Target),
			)
			continue
		}

		// Relations may mention entities the entity list missed.
		for _, name := range []string{rel.Source, rel.Target} {
			if _, ok := types[name]; !ok {
				types[name] = "unknown"
				node := Node{
					UserID:  userID,
					AgentID: agentID,
					RunID:   runID,
					Name:    name,
					Type:    "unknown",
				}
				if err := b.store.UpsertNode(ctx, node); err != nil {
					return nil, fmt.Errorf("upserting node %q: %w", name, err)
				}
			}
		}

		edge := Edge{
			UserID:       userID,
			AgentID:      agentID,
			RunID:        runID,
			Source:       rel.Source,
			Target:       rel.Target,
			Relationship: rel.Relationship,
			Confidence:   InitialConfidence,
			CreatedAt:    now,
		}
		if err := b.store.UpsertEdge(ctx, edge); err != nil {
			return nil, fmt.Errorf("upserting edge %s-[%s]->%s: %w", rel.Source, rel.Relationship, rel.Target, err)
		}

		written = append(written, rel)
	}

	b.logger.Debug("graph memory updated",
		zap.Int("entities", len(parsed.Entities)),
		zap.Int("relations", len(written)),
	)

	return written, nil
}

func buildExtractionPrompt(userID, text string) string {
	self := userID
	if self == "" {
		self = "USER"
	}

	return `You extract structured information from text to construct a knowledge graph.
Extract only explicitly stated information. Use "` + self + `" as the source entity for any self-references (I, me, my) in user messages.

Guidelines:
- Use basic, general types for entity labels (e.g. "person" instead of "mathematician").
- Use consistent, general, and timeless relationship types (prefer "PROFESSOR" over "BECAME_PROFESSOR").
- Use the most complete identifier for entities mentioned multiple times.

Return ONLY valid JSON with this shape:

{
  "entities": [{"name": "entity name", "type": "entity type"}],
  "relations": [{"source": "entity", "relationship": "RELATION_TYPE", "target": "entity"}]
}

Text:
` + text
}

func parseExtraction(response string) (*extraction, error) {
	// The model may wrap JSON in markdown code fences.
	jsonStr := response
	if idx := strings.Index(response, "{"); idx >= 0 {
		endIdx := strings.LastIndex(response, "}")
		if endIdx > idx {
			jsonStr = response[idx : endIdx+1]
		}
	}

	var parsed extraction
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal extraction JSON: %w", err)
	}

	return &parsed, nil
}
