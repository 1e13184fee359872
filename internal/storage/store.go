package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Backend persists the two tables. Implementations must be safe for
// concurrent use and must let a GetRecord observe a preceding PutRecord on
// the same key. They never merge: PutRecord replaces the stored record.
type Backend interface {
	// GetRecord returns the record and true, or false if it is absent.
	GetRecord(ctx context.Context, id string) (Record, bool, error)
	// PutRecord stores rec, replacing any record with the same id.
	PutRecord(ctx context.Context, rec Record) error
	// ListRecords returns every record, in any order.
	ListRecords(ctx context.Context) ([]Record, error)
	// AppendLog appends one entry to the action log.
	AppendLog(ctx context.Context, entry LogEntry) error
	// ListLog returns the action log in append order.
	ListLog(ctx context.Context) ([]LogEntry, error)
	// Close releases backend resources.
	Close() error
}

// Store is the single storage instance of a process. It is created once
// and handed to every component that needs the tables.
type Store struct {
	backend Backend

	recordMu sync.RWMutex // serializes record writes; readers share
	logMu    sync.Mutex   // serializes log appends

	now    func() time.Time
	closed atomic.Bool
}

// NewStore wraps backend. The Store takes ownership of it.
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		now:     time.Now,
	}
}

// GetRecord retrieves a record by id. ok is false when it does not exist.
func (s *Store) GetRecord(ctx context.Context, id string) (Record, bool, error) {
	if s.closed.Load() {
		return Record{}, false, wrap("get", TableRecords, ErrClosed)
	}

	s.recordMu.RLock()
	defer s.recordMu.RUnlock()

	rec, ok, err := s.backend.GetRecord(ctx, id)
	if err != nil {
		return Record{}, false, wrap("get", TableRecords, err)
	}
	if !ok {
		return Record{}, false, nil
	}
	return rec.Clone(), true, nil
}

// PutRecord upserts rec. If a record with the same id exists its fields
// are merged with rec's, rec winning. The stored record is returned.
func (s *Store) PutRecord(ctx context.Context, rec Record) (Record, error) {
	if s.closed.Load() {
		return Record{}, wrap("put", TableRecords, ErrClosed)
	}

	s.recordMu.Lock()
	defer s.recordMu.Unlock()

	stored := rec.Clone()
	existing, ok, err := s.backend.GetRecord(ctx, rec.ID)
	if err != nil {
		return Record{}, wrap("put", TableRecords, err)
	}
	if ok {
		stored = existing.Merge(rec)
	}

	if err := s.backend.PutRecord(ctx, stored); err != nil {
		return Record{}, wrap("put", TableRecords, err)
	}
	return stored.Clone(), nil
}

// ListRecords returns every record sorted by id.
func (s *Store) ListRecords(ctx context.Context) ([]Record, error) {
	if s.closed.Load() {
		return nil, wrap("list", TableRecords, ErrClosed)
	}

	s.recordMu.RLock()
	defer s.recordMu.RUnlock()

	records, err := s.backend.ListRecords(ctx)
	if err != nil {
		return nil, wrap("list", TableRecords, err)
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, r.Clone())
	}
	SortRecords(out)
	return out, nil
}

// AppendLog appends entry to the action log, stamping it with the current
// time when Timestamp is zero.
func (s *Store) AppendLog(ctx context.Context, entry LogEntry) error {
	if s.closed.Load() {
		return wrap("append", TableLog, ErrClosed)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}

	s.logMu.Lock()
	defer s.logMu.Unlock()

	return wrap("append", TableLog, s.backend.AppendLog(ctx, entry))
}

// ListLog returns the action log in append order.
func (s *Store) ListLog(ctx context.Context) ([]LogEntry, error) {
	if s.closed.Load() {
		return nil, wrap("list", TableLog, ErrClosed)
	}

	s.logMu.Lock()
	defer s.logMu.Unlock()

	entries, err := s.backend.ListLog(ctx)
	if err != nil {
		return nil, wrap("list", TableLog, err)
	}
	return entries, nil
}

// Close closes the backend. Further calls fail with ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.recordMu.Lock()
	s.logMu.Lock()
	defer s.logMu.Unlock()
	defer s.recordMu.Unlock()
	return s.backend.Close()
}
