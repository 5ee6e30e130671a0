package memory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/embeddings"
	"github.com/papercomputeco/engram/pkg/eventstream"
	"github.com/papercomputeco/engram/pkg/eventstream/nop"
	"github.com/papercomputeco/engram/pkg/graph"
	"github.com/papercomputeco/engram/pkg/history"
	"github.com/papercomputeco/engram/pkg/llm"
	"github.com/papercomputeco/engram/pkg/vector"
)

// Policy defaults.
const (
	DefaultTopK            = 5
	DefaultSearchLimit     = 10
	DefaultConflictRetries = 2
	DefaultSweepGrace      = 5 * time.Minute
)

// Policy tunes consolidation behavior. The zero value is completed by
// sensible defaults in New.
type Policy struct {
	// TopK is how many stored memories are retrieved per candidate fact
	// during reconciliation.
	TopK int

	// Threshold drops retrieved neighbors scoring below it. Zero keeps
	// everything the store returns.
	Threshold float32

	// HardDelete physically removes retired memories instead of
	// soft-deleting them.
	HardDelete bool

	// AuditNoop writes a ledger entry even when a candidate resolves to
	// NONE against a known memory.
	AuditNoop bool

	// ConflictRetries bounds how often a mutation is retried after a
	// version conflict before surfacing ErrConflict.
	ConflictRetries int

	// SweepGrace is how long a record may sit in processing before the
	// recovery sweep considers it abandoned.
	SweepGrace time.Duration

	// ExtractionPrompt and DecisionPrompt override the built-in prompts
	// when non-empty.
	ExtractionPrompt string
	DecisionPrompt   string
}

// Options wires an Engine's collaborators. Embedder, LLM, Vectors, History
// and Logger are required; the rest are optional.
type Options struct {
	Embedder embeddings.Embedder
	LLM      llm.CallFunc
	Vectors  vector.Driver
	History  history.Store
	Logger   *zap.Logger

	// GraphStore enables the parallel graph memory path.
	GraphStore graph.Store

	// Events receives a MemoryMutatedEvent per applied mutation. Defaults
	// to a no-op publisher.
	Events eventstream.Publisher

	Policy Policy
}

// Engine is the memory consolidation engine. It is safe for concurrent use;
// concurrent mutations of the same memory are serialized by optimistic
// versioning rather than locks.
type Engine struct {
	embedder embeddings.Embedder
	llmCall  llm.CallFunc
	vectors  vector.Driver
	history  history.Store
	events   eventstream.Publisher
	logger   *zap.Logger

	graphStore   graph.Store
	graphBuilder *graph.Builder

	policy Policy
}

// New validates the options and assembles an engine.
func New(opts Options) (*Engine, error) {
	if opts.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if opts.LLM == nil {
		return nil, fmt.Errorf("llm caller is required")
	}
	if opts.Vectors == nil {
		return nil, fmt.Errorf("vector driver is required")
	}
	if opts.History == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	policy := opts.Policy
	if policy.TopK <= 0 {
		policy.TopK = DefaultTopK
	}
	if policy.ConflictRetries <= 0 {
		policy.ConflictRetries = DefaultConflictRetries
	}
	if policy.SweepGrace <= 0 {
		policy.SweepGrace = DefaultSweepGrace
	}

	events := opts.Events
	if events == nil {
		events = nop.NewPublisher()
	}

	e := &Engine{
		embedder:   opts.Embedder,
		llmCall:    opts.LLM,
		vectors:    opts.Vectors,
		history:    opts.History,
		events:     events,
		logger:     opts.Logger,
		graphStore: opts.GraphStore,
		policy:     policy,
	}

	if opts.GraphStore != nil {
		e.graphBuilder = graph.NewBuilder(opts.LLM, opts.GraphStore, opts.Logger)
	}

	return e, nil
}

// AddOptions tunes one Add call.
type AddOptions struct {
	// Metadata is attached to every memory the call creates or updates.
	Metadata map[string]string

	// SkipInference bypasses extraction and reconciliation: each message
	// is stored verbatim as a new memory.
	SkipInference bool
}

// Add ingests conversation input into the scope's memory. Input is
// normalized, distilled into facts, reconciled against stored memories and
// applied as per-fact mutations; the graph path runs in parallel when a
// graph store is configured. Per-candidate failures are reported in the
// result without failing siblings.
func (e *Engine) Add(ctx context.Context, input any, scope Scope, opts AddOptions) (*AddResult, error) {
	if scope.IsZero() {
		return nil, fmt.Errorf("%w: at least one of user_id, agent_id or run_id is required", ErrInvalidInput)
	}

	messages, err := Normalize(input)
	if err != nil {
		return nil, err
	}

	var relations []Relation
	graphDone := make(chan struct{})
	if e.graphBuilder != nil {
		go func() {
			defer close(graphDone)
			rels, err := e.graphBuilder.Process(ctx, scope.UserID, scope.AgentID, scope.RunID, Transcript(messages))
			if err != nil {
				e.logger.Warn("graph memory path failed", zap.Error(err))
				return
			}
			for _, rel := range rels {
				relations = append(relations, Relation{
					Source:       rel.Source,
					Relationship: rel.Relationship,
					Target:       rel.Target,
				})
			}
		}()
	} else {
		close(graphDone)
	}

	result := &AddResult{}

	if opts.SkipInference {
		for _, msg := range messages {
			result.Results = append(result.Results,
				e.applyAdd(ctx, scope, opts.Metadata, candidate{}, msg.Content))
		}
		<-graphDone
		result.Relations = relations
		return result, nil
	}

	facts, err := e.extractFacts(ctx, messages)
	if err != nil {
		// Non-fatal: the add completes with zero candidates so the graph
		// path's work is not thrown away.
		e.logger.Warn("fact extraction failed", zap.Error(err))
		facts = nil
	}

	if len(facts) > 0 {
		candidates, err := e.retrieveCandidates(ctx, facts, scope)
		if err != nil {
			<-graphDone
			return nil, err
		}

		for _, d := range e.decideBatch(ctx, candidates) {
			result.Results = append(result.Results,
				e.applyDecision(ctx, scope, opts.Metadata, candidates[d.candidateIdx], d))
		}
	}

	<-graphDone
	result.Relations = relations
	return result, nil
}

func recordToMemory(r vector.Record) Memory {
	return Memory{
		ID:   r.ID,
		Text: r.Payload.Data,
		Scope: Scope{
			UserID:  r.Payload.UserID,
			AgentID: r.Payload.AgentID,
			RunID:   r.Payload.RunID,
		},
		Metadata:  r.Payload.Metadata,
		Hash:      r.Payload.Hash,
		CreatedAt: r.Payload.CreatedAt,
		UpdatedAt: r.Payload.UpdatedAt,
		Deleted:   r.Payload.Deleted,
	}
}
