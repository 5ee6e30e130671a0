package memory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/history"
	"github.com/papercomputeco/engram/pkg/vector"
)

// Sweep finalizes records stranded in the processing state by a crash
// between the store write and activation. Records younger than the policy's
// sweep grace are assumed in-flight and left alone. Returns how many
// records were finalized.
//
// Run Sweep once at startup, before serving traffic.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-e.policy.SweepGrace)

	records, err := e.vectors.List(ctx, vector.Filter{
		State:          vector.StateProcessing,
		IncludeDeleted: true,
	})
	if err != nil {
		return 0, fmt.Errorf("listing processing records: %w", err)
	}

	swept := 0
	for i := range records {
		record := records[i]
		if record.Payload.UpdatedAt.After(cutoff) {
			continue
		}

		// The crash may have landed before the ledger entry was written.
		// Repair the ledger so every surviving memory has an ADD entry.
		entries, err := e.history.Query(ctx, record.ID)
		if err != nil {
			e.logger.Error("sweep: ledger query failed",
				zap.String("memory_id", record.ID),
				zap.Error(err),
			)
			continue
		}
		if len(entries) == 0 {
			if err := e.appendHistory(ctx, record.ID, EventAdd, "", record.Payload.Data, history.ActorSweeper); err != nil {
				e.logger.Error("sweep: ledger repair failed",
					zap.String("memory_id", record.ID),
					zap.Error(err),
				)
				continue
			}
		}

		record.Payload.State = vector.StateActive
		if err := e.vectors.Upsert(ctx, []vector.Record{record}); err != nil {
			e.logger.Error("sweep: activation failed",
				zap.String("memory_id", record.ID),
				zap.Error(err),
			)
			continue
		}

		e.logger.Info("sweep: finalized stranded memory",
			zap.String("memory_id", record.ID),
			zap.Time("stranded_since", record.Payload.UpdatedAt),
		)
		swept++
	}

	return swept, nil
}
