// Package sqlite provides a SQLite-backed history ledger.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/history"
)

// Store implements history.Store on a SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Config holds configuration for the SQLite history store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string
}

// NewStore opens (and if needed initializes) the history ledger.
func NewStore(c Config, logger *zap.Logger) (*Store, error) {
	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_history (
			id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL,
			event TEXT NOT NULL,
			prev_value TEXT,
			new_value TEXT,
			created_at DATETIME NOT NULL,
			actor TEXT NOT NULL DEFAULT 'system'
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_history_memory_id ON memory_history(memory_id)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history index: %w", err)
	}

	logger.Info("sqlite history ledger initialized",
		zap.String("db_path", c.DBPath),
	)

	return &Store{db: db, logger: logger}, nil
}

// Append writes one entry to the ledger.
func (s *Store) Append(ctx context.Context, entry history.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_history(id, memory_id, event, prev_value, new_value, created_at, actor)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.MemoryID, entry.Event, entry.PrevValue,
		entry.NewValue, entry.CreatedAt.UTC(), entry.Actor,
	)
	if err != nil {
		return fmt.Errorf("appending history entry: %w", err)
	}

	s.logger.Debug("appended history entry",
		zap.String("memory_id", entry.MemoryID),
		zap.String("event", entry.Event),
	)

	return nil
}

// Query returns all entries for a memory, oldest first.
func (s *Store) Query(ctx context.Context, memoryID string) ([]history.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_id, event, prev_value, new_value, created_at, actor
		FROM memory_history
		WHERE memory_id = ?
		ORDER BY created_at ASC, id ASC`, memoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		var e history.Entry
		var prev, next sql.NullString
		if err := rows.Scan(&e.ID, &e.MemoryID, &e.Event, &prev, &next, &e.CreatedAt, &e.Actor); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		e.PrevValue = prev.String
		e.NewValue = next.String
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history entries: %w", err)
	}

	return entries, nil
}

// Reset removes all entries.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_history`); err != nil {
		return fmt.Errorf("resetting history: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ history.Store = (*Store)(nil)
