// Package jsonfile stores the record and log tables as JSON arrays in two
// files under a data directory, the layout operators inspect by hand.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"corpstore/internal/storage"
)

// File names inside the data directory.
const (
	DataFile = "corporate_data.json"
	LogFile  = "corporate_log.json"
)

// Backend is a file-backed storage.Backend. Every call re-reads the file
// it touches, so files purged out-of-band are picked up immediately.
type Backend struct {
	mu       sync.Mutex
	dataPath string
	logPath  string
	closed   bool
}

// Open creates dir if needed and initializes missing table files to "[]".
func Open(dir string) (*Backend, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	b := &Backend{
		dataPath: filepath.Join(dir, DataFile),
		logPath:  filepath.Join(dir, LogFile),
	}
	for _, p := range []string{b.dataPath, b.logPath} {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			if err := writeAtomic(p, []byte("[]")); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
	}
	return b, nil
}

// GetRecord retrieves a record by id.
func (b *Backend) GetRecord(ctx context.Context, id string) (storage.Record, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	records, err := b.loadRecords(ctx)
	if err != nil {
		return storage.Record{}, false, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, true, nil
		}
	}
	return storage.Record{}, false, nil
}

// PutRecord replaces the record with rec.ID or appends rec.
func (b *Backend) PutRecord(ctx context.Context, rec storage.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	records, err := b.loadRecords(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range records {
		if records[i].ID == rec.ID {
			records[i] = rec.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec.Clone())
	}
	return save(b.dataPath, records)
}

// ListRecords returns the records in file order.
func (b *Backend) ListRecords(ctx context.Context) ([]storage.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadRecords(ctx)
}

// AppendLog appends entry to the log file.
func (b *Backend) AppendLog(ctx context.Context, entry storage.LogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries, err := b.loadLog(ctx)
	if err != nil {
		return err
	}
	return save(b.logPath, append(entries, entry))
}

// ListLog returns the log in append order.
func (b *Backend) ListLog(ctx context.Context) ([]storage.LogEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadLog(ctx)
}

// Close marks the backend closed. Files stay on disk.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Backend) loadRecords(ctx context.Context) ([]storage.Record, error) {
	if err := b.check(ctx); err != nil {
		return nil, err
	}
	var records []storage.Record
	if err := load(b.dataPath, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (b *Backend) loadLog(ctx context.Context) ([]storage.LogEntry, error) {
	if err := b.check(ctx); err != nil {
		return nil, err
	}
	var entries []storage.LogEntry
	if err := load(b.logPath, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (b *Backend) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.closed {
		return storage.ErrClosed
	}
	return nil
}

// load decodes path into v. A missing or empty file decodes as an empty table.
func load(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeAtomic(path, data)
}

// writeAtomic replaces path through a temp file and rename.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
