// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/vector"
)

// Driver implements vector.Driver using SQLite with sqlite-vec.
type Driver struct {
	db     *sql.DB
	logger *zap.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// Payload table. vec0 virtual tables use integer rowids, so the
	// string memory IDs map through this table.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			memory_id TEXT NOT NULL UNIQUE,
			data TEXT NOT NULL,
			hash TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL DEFAULT 'active'
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating memories table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS memory_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec vector driver initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &Driver{
		db:     db,
		logger: logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Upsert stores records with their embeddings and payloads.
// A record with an existing ID is replaced.
func (d *Driver) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		embBlob := serializeFloat32(rec.Embedding)

		metaJSON, err := json.Marshal(rec.Payload.Metadata)
		if err != nil {
			return fmt.Errorf("serializing metadata for record %s: %w", rec.ID, err)
		}

		var existingRowID int64
		err = tx.QueryRowContext(ctx,
			`SELECT rowid FROM memories WHERE memory_id = ?`, rec.ID,
		).Scan(&existingRowID)

		switch err {
		case nil:
			if _, err := tx.ExecContext(ctx, `
				UPDATE memories SET
					data = ?, hash = ?, user_id = ?, agent_id = ?, run_id = ?,
					metadata = ?, created_at = ?, updated_at = ?, deleted = ?, state = ?
				WHERE rowid = ?`,
				rec.Payload.Data, rec.Payload.Hash, rec.Payload.UserID,
				rec.Payload.AgentID, rec.Payload.RunID, string(metaJSON),
				rec.Payload.CreatedAt.UTC(), rec.Payload.UpdatedAt.UTC(),
				boolToInt(rec.Payload.Deleted), rec.Payload.State,
				existingRowID,
			); err != nil {
				return fmt.Errorf("updating record %s: %w", rec.ID, err)
			}

			// vec0 does not support UPDATE, so replace via DELETE + INSERT
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM memory_embeddings WHERE rowid = ?`, existingRowID,
			); err != nil {
				return fmt.Errorf("deleting old embedding for record %s: %w", rec.ID, err)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO memory_embeddings(rowid, embedding) VALUES (?, ?)`,
				existingRowID, embBlob,
			); err != nil {
				return fmt.Errorf("re-inserting embedding for record %s: %w", rec.ID, err)
			}
		case sql.ErrNoRows:
			result, err := tx.ExecContext(ctx, `
				INSERT INTO memories(memory_id, data, hash, user_id, agent_id, run_id, metadata, created_at, updated_at, deleted, state)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.ID, rec.Payload.Data, rec.Payload.Hash, rec.Payload.UserID,
				rec.Payload.AgentID, rec.Payload.RunID, string(metaJSON),
				rec.Payload.CreatedAt.UTC(), rec.Payload.UpdatedAt.UTC(),
				boolToInt(rec.Payload.Deleted), rec.Payload.State,
			)
			if err != nil {
				return fmt.Errorf("inserting record %s: %w", rec.ID, err)
			}

			rowID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("getting rowid for record %s: %w", rec.ID, err)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO memory_embeddings(rowid, embedding) VALUES (?, ?)`,
				rowID, embBlob,
			); err != nil {
				return fmt.Errorf("inserting embedding for record %s: %w", rec.ID, err)
			}
		default:
			return fmt.Errorf("checking for existing record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("upserted records to sqlite-vec",
		zap.Int("count", len(records)),
	)

	return nil
}

// Search finds the topK most similar records to the given embedding,
// restricted by the filter. Scope and metadata filtering happens after the
// KNN pass, so the KNN over-fetches to compensate.
func (d *Driver) Search(ctx context.Context, embedding []float32, filter vector.Filter, topK int) ([]vector.SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}

	queryBlob := serializeFloat32(embedding)

	// Over-fetch: scope filtering discards an unknown share of the KNN
	// result, so ask for more than topK before filtering.
	fetchK := topK * 8
	if fetchK < 64 {
		fetchK = 64
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT
			m.memory_id, m.data, m.hash, m.user_id, m.agent_id, m.run_id,
			m.metadata, m.created_at, m.updated_at, m.deleted, m.state,
			me.distance
		FROM memory_embeddings me
		INNER JOIN memories m ON m.rowid = me.rowid
		WHERE me.embedding MATCH ?
			AND me.k = ?
		ORDER BY me.distance
	`, queryBlob, fetchK)
	if err != nil {
		return nil, fmt.Errorf("%w: querying vectors: %v", vector.ErrConnection, err)
	}
	defer rows.Close()

	var results []vector.SearchResult
	for rows.Next() {
		var rec vector.Record
		var metaJSON string
		var deleted int
		var distance float64
		if err := rows.Scan(
			&rec.ID, &rec.Payload.Data, &rec.Payload.Hash,
			&rec.Payload.UserID, &rec.Payload.AgentID, &rec.Payload.RunID,
			&metaJSON, &rec.Payload.CreatedAt, &rec.Payload.UpdatedAt,
			&deleted, &rec.Payload.State, &distance,
		); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		rec.Payload.Deleted = deleted != 0

		if err := json.Unmarshal([]byte(metaJSON), &rec.Payload.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for record %s: %w", rec.ID, err)
		}

		if !filter.Matches(rec.Payload) {
			continue
		}

		results = append(results, vector.SearchResult{
			Record: rec,
			// Convert distance to similarity score: lower distance = higher similarity
			Score: float32(1.0 / (1.0 + distance)),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	// Equal scores break toward the most recently updated record.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Payload.UpdatedAt.After(results[j].Payload.UpdatedAt)
	})

	if len(results) > topK {
		results = results[:topK]
	}

	d.logger.Debug("queried sqlite-vec",
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Get retrieves a single record by ID.
func (d *Driver) Get(ctx context.Context, id string) (*vector.Record, error) {
	var rec vector.Record
	var metaJSON string
	var deleted int
	var rowID int64

	err := d.db.QueryRowContext(ctx, `
		SELECT rowid, memory_id, data, hash, user_id, agent_id, run_id,
			metadata, created_at, updated_at, deleted, state
		FROM memories WHERE memory_id = ?`, id,
	).Scan(
		&rowID, &rec.ID, &rec.Payload.Data, &rec.Payload.Hash,
		&rec.Payload.UserID, &rec.Payload.AgentID, &rec.Payload.RunID,
		&metaJSON, &rec.Payload.CreatedAt, &rec.Payload.UpdatedAt,
		&deleted, &rec.Payload.State,
	)
	switch err {
	case nil:
	case sql.ErrNoRows:
		return nil, vector.ErrNotFound
	default:
		return nil, fmt.Errorf("querying record %s: %w", id, err)
	}
	rec.Payload.Deleted = deleted != 0

	if err := json.Unmarshal([]byte(metaJSON), &rec.Payload.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata for record %s: %w", id, err)
	}

	var embBlob []byte
	err = d.db.QueryRowContext(ctx,
		`SELECT embedding FROM memory_embeddings WHERE rowid = ?`, rowID,
	).Scan(&embBlob)
	if err == nil && len(embBlob) > 0 {
		rec.Embedding, _ = deserializeFloat32(embBlob)
	}

	return &rec, nil
}

// List returns all records matching the filter, most recently updated first.
func (d *Driver) List(ctx context.Context, filter vector.Filter) ([]vector.Record, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT memory_id, data, hash, user_id, agent_id, run_id,
			metadata, created_at, updated_at, deleted, state
		FROM memories ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing records: %v", vector.ErrConnection, err)
	}
	defer rows.Close()

	var records []vector.Record
	for rows.Next() {
		var rec vector.Record
		var metaJSON string
		var deleted int
		if err := rows.Scan(
			&rec.ID, &rec.Payload.Data, &rec.Payload.Hash,
			&rec.Payload.UserID, &rec.Payload.AgentID, &rec.Payload.RunID,
			&metaJSON, &rec.Payload.CreatedAt, &rec.Payload.UpdatedAt,
			&deleted, &rec.Payload.State,
		); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rec.Payload.Deleted = deleted != 0

		if err := json.Unmarshal([]byte(metaJSON), &rec.Payload.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for record %s: %w", rec.ID, err)
		}

		if !filter.Matches(rec.Payload) {
			continue
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return records, nil
}

// Delete removes records by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	query := fmt.Sprintf(
		`SELECT rowid FROM memories WHERE memory_id IN (%s)`, inClause,
	)
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying rowids for deletion: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rowids: %w", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM memory_embeddings WHERE rowid = ?`, rowID,
		); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
	}

	deleteQuery := fmt.Sprintf(
		`DELETE FROM memories WHERE memory_id IN (%s)`, inClause,
	)
	if _, err := tx.ExecContext(ctx, deleteQuery, args...); err != nil {
		return fmt.Errorf("deleting records: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("deleted records from sqlite-vec",
		zap.Int("count", len(ids)),
	)

	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ vector.Driver = (*Driver)(nil)
