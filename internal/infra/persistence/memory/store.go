// Package memory provides an in-memory implementation of the inventory
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"labstock/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

type state struct {
	records []domain.Record
	index   map[string]int // id -> position in records
}

func newState() state {
	return state{index: make(map[string]int)}
}

func (s state) clone() state {
	cloned := state{
		records: make([]domain.Record, len(s.records)),
		index:   make(map[string]int, len(s.index)),
	}
	for i, r := range s.records {
		cloned.records[i] = r.Clone()
		cloned.index[r.ID] = i
	}
	return cloned
}

func (s *state) reindex() {
	s.index = make(map[string]int, len(s.records))
	for i, r := range s.records {
		s.index[r.ID] = i
	}
}

// Store keeps the record set in memory, preserving stored order. All reads
// return clones so callers can never alias internal state.
type Store struct {
	mu    sync.RWMutex
	state state
	nowFn func() time.Time
	newID func() string
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newState(),
		nowFn: func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

// SetClock overrides the transaction timestamp source (tests).
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = now
}

// Tx is a mutation set applied atomically to the store state.
type Tx struct {
	store *Store
	state state
	now   time.Time
}

var _ domain.Transaction = (*Tx)(nil)

type view struct {
	state *state
}

var _ domain.TransactionView = view{}

// ListRecords returns all records in stored order.
func (v view) ListRecords() []domain.Record {
	out := make([]domain.Record, len(v.state.records))
	for i, r := range v.state.records {
		out[i] = r.Clone()
	}
	return out
}

// FindRecord retrieves a record by ID from the snapshot.
func (v view) FindRecord(id string) (domain.Record, bool) {
	i, ok := v.state.index[id]
	if !ok {
		return domain.Record{}, false
	}
	return v.state.records[i].Clone(), true
}

// RunInTransaction executes fn within a transactional copy of the store
// state; the copy replaces the live state only when fn succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{store: s, state: s.state.clone(), now: s.nowFn()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(view{state: &snapshot})
}

// Snapshot exposes the transactional state read-only.
func (tx *Tx) Snapshot() domain.TransactionView {
	return view{state: &tx.state}
}

// FindRecord retrieves a record by ID within the transaction.
func (tx *Tx) FindRecord(id string) (domain.Record, bool) {
	return view{state: &tx.state}.FindRecord(id)
}

// CreateRecord stores a new normalized record, generating an ID when absent.
func (tx *Tx) CreateRecord(r domain.Record) (domain.Record, error) {
	r = domain.Normalize(r)
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.index[r.ID]; exists {
		return domain.Record{}, fmt.Errorf("record %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.records = append(tx.state.records, r.Clone())
	tx.state.index[r.ID] = len(tx.state.records) - 1
	return r, nil
}

// UpdateRecord mutates a record in place; the result is re-normalized and the
// ID is immutable.
func (tx *Tx) UpdateRecord(id string, mutator func(*domain.Record) error) (domain.Record, error) {
	i, ok := tx.state.index[id]
	if !ok {
		return domain.Record{}, fmt.Errorf("record %q not found", id)
	}
	current := tx.state.records[i].Clone()
	if err := mutator(&current); err != nil {
		return domain.Record{}, err
	}
	current = domain.Normalize(current)
	current.ID = id
	current.CreatedAt = tx.state.records[i].CreatedAt
	current.UpdatedAt = tx.now
	tx.state.records[i] = current.Clone()
	return current, nil
}

// DeleteRecord removes a record from the transaction state.
func (tx *Tx) DeleteRecord(id string) error {
	i, ok := tx.state.index[id]
	if !ok {
		return fmt.Errorf("record %q not found", id)
	}
	tx.state.records = append(tx.state.records[:i], tx.state.records[i+1:]...)
	tx.state.reindex()
	return nil
}

// ReplaceAll swaps the entire record set. Incoming records are normalized and
// assigned IDs when missing; duplicate IDs are rejected.
func (tx *Tx) ReplaceAll(records []domain.Record) error {
	next := newState()
	for _, r := range records {
		r = domain.Normalize(r)
		if r.ID == "" {
			r.ID = tx.store.newID()
		}
		if _, exists := next.index[r.ID]; exists {
			return fmt.Errorf("duplicate record id %q", r.ID)
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = tx.now
		}
		r.UpdatedAt = tx.now
		next.records = append(next.records, r.Clone())
		next.index[r.ID] = len(next.records) - 1
	}
	tx.state = next
	return nil
}

// GetRecord retrieves a record by ID from committed state.
func (s *Store) GetRecord(id string) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.state.index[id]
	if !ok {
		return domain.Record{}, false
	}
	return s.state.records[i].Clone(), true
}

// ListRecords returns all records from committed state in stored order.
func (s *Store) ListRecords() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Record, len(s.state.records))
	for i, r := range s.state.records {
		out[i] = r.Clone()
	}
	return out
}

// Close releases resources; a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// ExportState returns a clone of the full record set for snapshotting stores.
func (s *Store) ExportState() []domain.Record {
	return s.ListRecords()
}

// ImportState replaces the committed state wholesale without touching
// timestamps. Used by persistent wrappers when loading from disk.
func (s *Store) ImportState(records []domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := newState()
	for _, r := range records {
		r = domain.Normalize(r)
		if r.ID == "" {
			r.ID = s.newID()
		}
		if _, exists := next.index[r.ID]; exists {
			continue // first occurrence wins on duplicate IDs in the file
		}
		next.records = append(next.records, r.Clone())
		next.index[r.ID] = len(next.records) - 1
	}
	s.state = next
}
