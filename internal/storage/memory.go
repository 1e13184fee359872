package storage

import (
	"context"
	"sync"
)

// MemoryBackend is an in-memory implementation of Backend.
// It's thread-safe and keeps nothing across restarts.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]Record
	log     []LogEntry
	closed  bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string]Record),
	}
}

// GetRecord retrieves a record by id.
func (b *MemoryBackend) GetRecord(ctx context.Context, id string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return Record{}, false, ErrClosed
	}

	rec, exists := b.records[id]
	if !exists {
		return Record{}, false, nil
	}
	// Return a copy to avoid external modifications
	return rec.Clone(), true, nil
}

// PutRecord stores a copy of rec.
func (b *MemoryBackend) PutRecord(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	b.records[rec.ID] = rec.Clone()
	return nil
}

// ListRecords returns copies of all records.
func (b *MemoryBackend) ListRecords(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	out := make([]Record, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

// AppendLog appends entry.
func (b *MemoryBackend) AppendLog(ctx context.Context, entry LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	b.log = append(b.log, entry)
	return nil
}

// ListLog returns a copy of the log.
func (b *MemoryBackend) ListLog(ctx context.Context) ([]LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	return append([]LogEntry(nil), b.log...), nil
}

// Close marks the backend closed.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
