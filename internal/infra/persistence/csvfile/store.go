// Package csvfile implements the canonical persistence backend: a single
// flat CSV file rewritten wholesale after every committed transaction.
package csvfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"labstock/internal/infra/persistence/memory"
	"labstock/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// ErrCorrupt marks a data file that could not be parsed. NewStore still
// returns a usable (empty) store alongside it so the caller can decide
// whether to proceed.
var ErrCorrupt = errors.New("csvfile: corrupt data file")

// DefaultPath is the data file used when no path is configured.
const DefaultPath = "chemicals_master.csv"

// Store persists the in-memory state to a CSV file. The whole normalized
// record set is written after every successful transaction via an atomic
// temp-file rename; there is no append log and no partial write.
type Store struct {
	*memory.Store
	mu   sync.Mutex
	path string
}

// NewStore opens or creates a CSV-backed store at path. A missing file loads
// as an empty record set. A file that fails to parse also loads as empty, but
// the returned error wraps ErrCorrupt so callers can surface it.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	s := &Store{Store: memory.NewStore(), path: path}
	if err := s.load(); err != nil {
		if errors.Is(err, ErrCorrupt) {
			return s, err
		}
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	records, _, err := domain.DecodeCSV(f)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	s.ImportState(records)
	return nil
}

// Reload re-reads the data file, replacing in-memory state. Used by the file
// watcher when the CSV is edited outside the process.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.ExportState()
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".chemicals-*.csv")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := domain.EncodeCSV(tmp, records); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// RunInTransaction applies fn atomically in memory, then rewrites the CSV
// file when the transaction commits.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := s.Store.RunInTransaction(ctx, fn); err != nil {
		return err
	}
	return s.persist()
}

// Path returns the configured data file path.
func (s *Store) Path() string { return s.path }
