package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/eventstream"
	"github.com/papercomputeco/engram/pkg/history"
	"github.com/papercomputeco/engram/pkg/vector"
)

// applyDecision executes one reconciliation decision against the vector
// store, records it in the history ledger and publishes a mutation event.
// Failures are confined to this candidate; siblings proceed independently.
func (e *Engine) applyDecision(ctx context.Context, scope Scope, metadata map[string]string, c candidate, d decision) MutationResult {
	switch d.event {
	case EventAdd:
		return e.applyAdd(ctx, scope, metadata, c, d.text)
	case EventUpdate:
		return e.applyUpdate(ctx, scope, metadata, c, d)
	case EventDelete:
		return e.applyDelete(ctx, d)
	default:
		return e.applyNone(ctx, d)
	}
}

func (e *Engine) applyAdd(ctx context.Context, scope Scope, metadata map[string]string, c candidate, text string) MutationResult {
	embedding := c.embedding
	if text != c.text || embedding == nil {
		var err error
		embedding, err = e.embedder.Embed(ctx, text)
		if err != nil {
			return MutationResult{Text: text, Event: EventAdd, Err: fmt.Errorf("embedding memory: %w", err)}
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	record := vector.Record{
		ID:        id,
		Embedding: embedding,
		Payload: vector.Payload{
			Data:      text,
			Hash:      ContentHash(text),
			UserID:    scope.UserID,
			AgentID:   scope.AgentID,
			RunID:     scope.RunID,
			Metadata:  metadata,
			CreatedAt: now,
			UpdatedAt: now,
			State:     vector.StateProcessing,
		},
	}

	// The record lands in processing first; it only becomes active once
	// the ledger entry is durable. A crash between the two leaves a
	// processing draft for the recovery sweep to finalize.
	if err := e.vectors.Upsert(ctx, []vector.Record{record}); err != nil {
		return MutationResult{Text: text, Event: EventAdd, Err: fmt.Errorf("storing memory: %w", err)}
	}

	if err := e.appendHistory(ctx, id, EventAdd, "", text, history.ActorSystem); err != nil {
		e.logger.Error("memory stored but ledger append failed; left in processing for sweep",
			zap.String("memory_id", id),
			zap.Error(err),
		)
		return MutationResult{ID: id, Text: text, Event: EventAdd, Err: err}
	}

	record.Payload.State = vector.StateActive
	if err := e.vectors.Upsert(ctx, []vector.Record{record}); err != nil {
		e.logger.Error("memory stored but activation failed; left in processing for sweep",
			zap.String("memory_id", id),
			zap.Error(err),
		)
		return MutationResult{ID: id, Text: text, Event: EventAdd, Err: err}
	}

	e.publishMutation(ctx, scope, eventstream.EventChange{
		MemoryID: id,
		Event:    string(EventAdd),
		NewValue: text,
	})

	return MutationResult{ID: id, Text: text, Event: EventAdd}
}

func (e *Engine) applyUpdate(ctx context.Context, scope Scope, metadata map[string]string, c candidate, d decision) MutationResult {
	expected := d.readUpdatedAt
	prev := d.prevText

	for attempt := 0; attempt <= e.policy.ConflictRetries; attempt++ {
		record, err := e.vectors.Get(ctx, d.targetID)
		if errors.Is(err, vector.ErrNotFound) {
			// Target vanished between decision and apply. The fact still
			// deserves to exist, so it falls back to a fresh ADD.
			e.logger.Warn("update target missing, falling back to add",
				zap.String("memory_id", d.targetID),
			)
			return e.applyAdd(ctx, scope, metadata, c, d.text)
		}
		if err != nil {
			return MutationResult{ID: d.targetID, Text: d.text, Event: EventUpdate, Err: fmt.Errorf("reading memory: %w", err)}
		}

		if !record.Payload.UpdatedAt.Equal(expected) {
			// A concurrent writer got there first. Retry against the
			// state it left behind.
			e.logger.Debug("version conflict on update, retrying",
				zap.String("memory_id", d.targetID),
				zap.Int("attempt", attempt),
			)
			expected = record.Payload.UpdatedAt
			prev = record.Payload.Data
			continue
		}

		embedding := c.embedding
		if d.text != c.text || embedding == nil {
			embedding, err = e.embedder.Embed(ctx, d.text)
			if err != nil {
				return MutationResult{ID: d.targetID, Text: d.text, Event: EventUpdate, Err: fmt.Errorf("embedding memory: %w", err)}
			}
		}

		updated := *record
		updated.Embedding = embedding
		updated.Payload.Data = d.text
		updated.Payload.Hash = ContentHash(d.text)
		updated.Payload.UpdatedAt = time.Now().UTC()
		updated.Payload.State = vector.StateActive
		for k, v := range metadata {
			if updated.Payload.Metadata == nil {
				updated.Payload.Metadata = map[string]string{}
			}
			updated.Payload.Metadata[k] = v
		}

		if err := e.vectors.Upsert(ctx, []vector.Record{updated}); err != nil {
			return MutationResult{ID: d.targetID, Text: d.text, Event: EventUpdate, Err: fmt.Errorf("storing memory: %w", err)}
		}

		if err := e.appendHistory(ctx, d.targetID, EventUpdate, prev, d.text, history.ActorSystem); err != nil {
			e.logger.Error("memory updated but ledger append failed",
				zap.String("memory_id", d.targetID),
				zap.Error(err),
			)
		}

		e.publishMutation(ctx, scope, eventstream.EventChange{
			MemoryID:  d.targetID,
			Event:     string(EventUpdate),
			PrevValue: prev,
			NewValue:  d.text,
		})

		return MutationResult{ID: d.targetID, Text: d.text, Event: EventUpdate, PrevText: prev}
	}

	return MutationResult{ID: d.targetID, Text: d.text, Event: EventUpdate, Err: fmt.Errorf("%w: memory %s", ErrConflict, d.targetID)}
}

func (e *Engine) applyDelete(ctx context.Context, d decision) MutationResult {
	expected := d.readUpdatedAt
	prev := d.prevText

	for attempt := 0; attempt <= e.policy.ConflictRetries; attempt++ {
		record, err := e.vectors.Get(ctx, d.targetID)
		if errors.Is(err, vector.ErrNotFound) {
			// Already gone; deleting it again would be a lie in the
			// ledger. Report no change.
			e.logger.Warn("delete target missing, treating as no-op",
				zap.String("memory_id", d.targetID),
			)
			return MutationResult{ID: d.targetID, Event: EventNone, PrevText: prev}
		}
		if err != nil {
			return MutationResult{ID: d.targetID, Event: EventDelete, Err: fmt.Errorf("reading memory: %w", err)}
		}

		if !record.Payload.UpdatedAt.Equal(expected) {
			e.logger.Debug("version conflict on delete, retrying",
				zap.String("memory_id", d.targetID),
				zap.Int("attempt", attempt),
			)
			expected = record.Payload.UpdatedAt
			prev = record.Payload.Data
			continue
		}

		scope := Scope{
			UserID:  record.Payload.UserID,
			AgentID: record.Payload.AgentID,
			RunID:   record.Payload.RunID,
		}

		if e.policy.HardDelete {
			if err := e.vectors.Delete(ctx, []string{d.targetID}); err != nil {
				return MutationResult{ID: d.targetID, Event: EventDelete, Err: fmt.Errorf("deleting memory: %w", err)}
			}
		} else {
			retired := *record
			retired.Payload.Deleted = true
			retired.Payload.State = vector.StateDeleted
			retired.Payload.UpdatedAt = time.Now().UTC()
			if err := e.vectors.Upsert(ctx, []vector.Record{retired}); err != nil {
				return MutationResult{ID: d.targetID, Event: EventDelete, Err: fmt.Errorf("retiring memory: %w", err)}
			}
		}

		if err := e.appendHistory(ctx, d.targetID, EventDelete, prev, "", history.ActorSystem); err != nil {
			e.logger.Error("memory deleted but ledger append failed",
				zap.String("memory_id", d.targetID),
				zap.Error(err),
			)
		}

		e.publishMutation(ctx, scope, eventstream.EventChange{
			MemoryID:  d.targetID,
			Event:     string(EventDelete),
			PrevValue: prev,
		})

		return MutationResult{ID: d.targetID, Event: EventDelete, PrevText: prev}
	}

	return MutationResult{ID: d.targetID, Event: EventDelete, Err: fmt.Errorf("%w: memory %s", ErrConflict, d.targetID)}
}

func (e *Engine) applyNone(ctx context.Context, d decision) MutationResult {
	if e.policy.AuditNoop && d.targetID != "" {
		if err := e.appendHistory(ctx, d.targetID, EventNone, d.prevText, d.prevText, history.ActorSystem); err != nil {
			e.logger.Warn("noop ledger append failed",
				zap.String("memory_id", d.targetID),
				zap.Error(err),
			)
		}
	}
	return MutationResult{ID: d.targetID, Text: d.prevText, Event: EventNone}
}

func (e *Engine) appendHistory(ctx context.Context, memoryID string, event Event, prev, next, actor string) error {
	return e.history.Append(ctx, history.Entry{
		ID:        uuid.NewString(),
		MemoryID:  memoryID,
		Event:     string(event),
		PrevValue: prev,
		NewValue:  next,
		CreatedAt: time.Now().UTC(),
		Actor:     actor,
	})
}

// publishMutation emits the event best-effort. A dead stream never fails a
// committed mutation.
func (e *Engine) publishMutation(ctx context.Context, scope Scope, change eventstream.EventChange) {
	event := &eventstream.MemoryMutatedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeMemoryMutated,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Scope: eventstream.EventScope{
			UserID:  scope.UserID,
			AgentID: scope.AgentID,
			RunID:   scope.RunID,
		},
		Mutation: change,
	}

	if err := e.events.PublishMutation(ctx, event); err != nil {
		e.logger.Warn("publishing mutation event failed",
			zap.String("memory_id", change.MemoryID),
			zap.Error(err),
		)
	}
}
