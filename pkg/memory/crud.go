package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/eventstream"
	"github.com/papercomputeco/engram/pkg/history"
	"github.com/papercomputeco/engram/pkg/vector"
)

// Get retrieves one memory by id, soft-deleted or not. Returns
// vector.ErrNotFound when no such memory exists.
func (e *Engine) Get(ctx context.Context, id string) (*Memory, error) {
	record, err := e.vectors.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m := recordToMemory(*record)
	return &m, nil
}

// ListOptions tunes one GetAll call.
type ListOptions struct {
	// IncludeDeleted lets soft-deleted memories appear in the listing.
	IncludeDeleted bool
}

// GetAll returns the scope's memories. Soft-deleted memories are excluded
// unless IncludeDeleted asks for them; in-flight drafts never appear.
func (e *Engine) GetAll(ctx context.Context, scope Scope, opts ListOptions) ([]Memory, error) {
	if scope.IsZero() {
		return nil, fmt.Errorf("%w: at least one of user_id, agent_id or run_id is required", ErrInvalidInput)
	}

	filter := vector.Filter{
		UserID:  scope.UserID,
		AgentID: scope.AgentID,
		RunID:   scope.RunID,
		State:   vector.StateActive,
	}
	if opts.IncludeDeleted {
		filter.IncludeDeleted = true
		filter.State = ""
	}

	records, err := e.vectors.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}

	memories := make([]Memory, 0, len(records))
	for _, record := range records {
		if record.Payload.State == vector.StateProcessing {
			continue
		}
		memories = append(memories, recordToMemory(record))
	}
	return memories, nil
}

// Update replaces a memory's text directly, bypassing the reconciliation
// pipeline. The change is ledgered with the user actor.
func (e *Engine) Update(ctx context.Context, id, text string) (*MutationResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty memory text", ErrInvalidInput)
	}

	record, err := e.vectors.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	embedding, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding memory: %v", ErrRetrieval, err)
	}

	prev := record.Payload.Data

	updated := *record
	updated.Embedding = embedding
	updated.Payload.Data = text
	updated.Payload.Hash = ContentHash(text)
	updated.Payload.UpdatedAt = time.Now().UTC()
	updated.Payload.State = vector.StateActive
	updated.Payload.Deleted = false

	if err := e.vectors.Upsert(ctx, []vector.Record{updated}); err != nil {
		return nil, fmt.Errorf("storing memory: %w", err)
	}

	if err := e.appendHistory(ctx, id, EventUpdate, prev, text, history.ActorUser); err != nil {
		e.logger.Error("memory updated but ledger append failed",
			zap.String("memory_id", id),
			zap.Error(err),
		)
	}

	scope := Scope{
		UserID:  record.Payload.UserID,
		AgentID: record.Payload.AgentID,
		RunID:   record.Payload.RunID,
	}
	e.publishMutation(ctx, scope, eventstream.EventChange{
		MemoryID:  id,
		Event:     string(EventUpdate),
		PrevValue: prev,
		NewValue:  text,
	})

	return &MutationResult{ID: id, Text: text, Event: EventUpdate, PrevText: prev}, nil
}

// Delete retires one memory directly. Soft delete by default; physical
// removal when the engine's policy says so.
func (e *Engine) Delete(ctx context.Context, id string) error {
	record, err := e.vectors.Get(ctx, id)
	if err != nil {
		return err
	}

	return e.deleteRecord(ctx, record, history.ActorUser)
}

// DeleteAll retires every memory in the scope and drops the scope's graph.
func (e *Engine) DeleteAll(ctx context.Context, scope Scope) error {
	if scope.IsZero() {
		return fmt.Errorf("%w: at least one of user_id, agent_id or run_id is required", ErrInvalidInput)
	}

	records, err := e.vectors.List(ctx, vector.Filter{
		UserID:  scope.UserID,
		AgentID: scope.AgentID,
		RunID:   scope.RunID,
	})
	if err != nil {
		return fmt.Errorf("listing memories: %w", err)
	}

	for i := range records {
		if err := e.deleteRecord(ctx, &records[i], history.ActorUser); err != nil {
			return fmt.Errorf("deleting memory %s: %w", records[i].ID, err)
		}
	}

	if e.graphStore != nil {
		if err := e.graphStore.DeleteScope(ctx, scope.UserID, scope.AgentID, scope.RunID); err != nil {
			return fmt.Errorf("deleting scope graph: %w", err)
		}
	}

	return nil
}

func (e *Engine) deleteRecord(ctx context.Context, record *vector.Record, actor string) error {
	prev := record.Payload.Data

	if e.policy.HardDelete {
		if err := e.vectors.Delete(ctx, []string{record.ID}); err != nil {
			return fmt.Errorf("deleting memory: %w", err)
		}
	} else {
		retired := *record
		retired.Payload.Deleted = true
		retired.Payload.State = vector.StateDeleted
		retired.Payload.UpdatedAt = time.Now().UTC()
		if err := e.vectors.Upsert(ctx, []vector.Record{retired}); err != nil {
			return fmt.Errorf("retiring memory: %w", err)
		}
	}

	if err := e.appendHistory(ctx, record.ID, EventDelete, prev, "", actor); err != nil {
		e.logger.Error("memory deleted but ledger append failed",
			zap.String("memory_id", record.ID),
			zap.Error(err),
		)
	}

	scope := Scope{
		UserID:  record.Payload.UserID,
		AgentID: record.Payload.AgentID,
		RunID:   record.Payload.RunID,
	}
	e.publishMutation(ctx, scope, eventstream.EventChange{
		MemoryID:  record.ID,
		Event:     string(EventDelete),
		PrevValue: prev,
	})

	return nil
}

// History returns a memory's full ledger, oldest entry first.
func (e *Engine) History(ctx context.Context, id string) ([]history.Entry, error) {
	return e.history.Query(ctx, id)
}

// Reset wipes the vector store and the history ledger. Scoped graph data
// is removed through DeleteAll; Reset leaves graph stores untouched.
func (e *Engine) Reset(ctx context.Context) error {
	records, err := e.vectors.List(ctx, vector.Filter{IncludeDeleted: true})
	if err != nil {
		return fmt.Errorf("listing memories: %w", err)
	}

	if len(records) > 0 {
		ids := make([]string, len(records))
		for i, record := range records {
			ids[i] = record.ID
		}
		if err := e.vectors.Delete(ctx, ids); err != nil {
			return fmt.Errorf("deleting memories: %w", err)
		}
	}

	if err := e.history.Reset(ctx); err != nil {
		return fmt.Errorf("resetting history: %w", err)
	}

	e.logger.Info("memory store reset", zap.Int("deleted", len(records)))
	return nil
}
