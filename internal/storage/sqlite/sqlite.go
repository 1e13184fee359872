// Package sqlite provides a SQLite-backed storage.Backend with one table per
// logical table: corporate_data keyed by id and corporate_log ordered by seq.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"corpstore/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Backend persists both tables in one SQLite database.
type Backend struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Backend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		path = filepath.Clean(path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	// SQLite only supports one writer at a time; an in-memory database
	// also exists per connection, so keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Backend{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// GetRecord retrieves a record by id.
func (b *Backend) GetRecord(ctx context.Context, id string) (storage.Record, bool, error) {
	var fieldsJSON string
	err := b.db.QueryRowContext(ctx, `SELECT fields FROM corporate_data WHERE id = ?`, id).Scan(&fieldsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Record{}, false, nil
	}
	if err != nil {
		return storage.Record{}, false, fmt.Errorf("query record %s: %w", id, err)
	}
	rec, err := decodeRecord(id, fieldsJSON)
	if err != nil {
		return storage.Record{}, false, err
	}
	return rec, true, nil
}

// PutRecord inserts rec or replaces the row with the same id.
func (b *Backend) PutRecord(ctx context.Context, rec storage.Record) error {
	fields := rec.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO corporate_data (id, fields) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET fields = excluded.fields`,
		rec.ID, string(fieldsJSON))
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecords returns all records ordered by id.
func (b *Backend) ListRecords(ctx context.Context) ([]storage.Record, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, fields FROM corporate_data ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []storage.Record
	for rows.Next() {
		var id, fieldsJSON string
		if err := rows.Scan(&id, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := decodeRecord(id, fieldsJSON)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// AppendLog inserts entry at the end of the log.
func (b *Backend) AppendLog(ctx context.Context, entry storage.LogEntry) error {
	var recordID sql.NullString
	if entry.ID != "" {
		recordID = sql.NullString{String: entry.ID, Valid: true}
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO corporate_log (uuid, session, action, ts, record_id)
		VALUES (?, ?, ?, ?, ?)`,
		entry.UUID, entry.SessionID, entry.Action, entry.Timestamp.UTC().UnixNano(), recordID)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// ListLog returns the log ordered by insertion.
func (b *Backend) ListLog(ctx context.Context) ([]storage.LogEntry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT uuid, session, action, ts, record_id
		FROM corporate_log ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	var entries []storage.LogEntry
	for rows.Next() {
		var (
			e        storage.LogEntry
			ts       int64
			recordID sql.NullString
		)
		if err := rows.Scan(&e.UUID, &e.SessionID, &e.Action, &ts, &recordID); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.ID = recordID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return entries, nil
}

// Close closes the database handle.
func (b *Backend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func decodeRecord(id, fieldsJSON string) (storage.Record, error) {
	fields := map[string]string{}
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return storage.Record{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	return storage.Record{ID: id, Fields: fields}, nil
}
