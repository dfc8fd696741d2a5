// Package core exposes the transactional inventory operations built on top
// of a domain.PersistentStore: CRUD, search, location views, and the
// upload reconciliation routine.
package core

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"labstock/pkg/domain"
)

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches a metrics recorder; every operation is timed.
func WithMetrics(rec MetricsRecorder) Option {
	return func(s *Service) { s.metrics = rec }
}

// WithStrictCAS makes CreateRecord and UpdateRecord reject records whose CAS
// field is non-empty and malformed.
func WithStrictCAS() Option {
	return func(s *Service) { s.strictCAS = true }
}

// Service exposes higher-level transactional operations over the record set.
type Service struct {
	store     domain.PersistentStore
	metrics   MetricsRecorder
	strictCAS bool
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{store: store, metrics: NopMetrics{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

func (s *Service) observe(op string, start time.Time, err error) {
	s.metrics.Observe(op, time.Since(start), err)
}

func (s *Service) checkCAS(r domain.Record) error {
	if !s.strictCAS {
		return nil
	}
	if cas := strings.TrimSpace(r.CAS); cas != "" && !domain.ValidCAS(cas) {
		return fmt.Errorf("invalid CAS number %q", cas)
	}
	return nil
}

// CreateRecord persists a new normalized record.
func (s *Service) CreateRecord(ctx context.Context, record domain.Record) (created domain.Record, err error) {
	defer func(start time.Time) { s.observe("create_record", start, err) }(time.Now())
	if err = s.checkCAS(record); err != nil {
		return domain.Record{}, err
	}
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateRecord(record)
		return txErr
	})
	return created, err
}

// UpdateRecord mutates a record using the provided mutator.
func (s *Service) UpdateRecord(ctx context.Context, id string, mutator func(*domain.Record) error) (updated domain.Record, err error) {
	defer func(start time.Time) { s.observe("update_record", start, err) }(time.Now())
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		updated, txErr = tx.UpdateRecord(id, func(r *domain.Record) error {
			if mErr := mutator(r); mErr != nil {
				return mErr
			}
			return s.checkCAS(*r)
		})
		return txErr
	})
	return updated, err
}

// DeleteRecord removes a single record by ID.
func (s *Service) DeleteRecord(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { s.observe("delete_record", start, err) }(time.Now())
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteRecord(id)
	})
	return err
}

// GetRecord retrieves a record by ID.
func (s *Service) GetRecord(id string) (domain.Record, bool) {
	return s.store.GetRecord(id)
}

// ListRecords returns the full record set in stored order.
func (s *Service) ListRecords() []domain.Record {
	return s.store.ListRecords()
}

// searchFields are the columns covered by the global search box.
var searchFields = []string{"name", "cas", "hazards", "location", "distributor"}

// Search returns records whose name, CAS, hazards, location, or distributor
// contains the query, case-insensitively. A blank query matches everything.
func (s *Service) Search(query string) []domain.Record {
	records := s.store.ListRecords()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return records
	}
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		for _, f := range searchFields {
			if strings.Contains(strings.ToLower(r.Field(f)), q) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// FilterByLocation returns records stored at the given location.
func (s *Service) FilterByLocation(location string) []domain.Record {
	records := s.store.ListRecords()
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if r.Location == location {
			out = append(out, r)
		}
	}
	return out
}

// Locations returns the sorted distinct non-blank storage locations. The set
// is user-extensible: it is derived from the data rather than configured.
func (s *Service) Locations() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range s.store.ListRecords() {
		loc := strings.TrimSpace(r.Location)
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// DeleteByLocation removes every record stored at the given location and
// returns how many were removed.
func (s *Service) DeleteByLocation(ctx context.Context, location string) (removed int, err error) {
	defer func(start time.Time) { s.observe("delete_by_location", start, err) }(time.Now())
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		kept := make([]domain.Record, 0)
		for _, r := range tx.Snapshot().ListRecords() {
			if r.Location == location {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		return tx.ReplaceAll(kept)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Clear resets the inventory to an empty record set.
func (s *Service) Clear(ctx context.Context) (err error) {
	defer func(start time.Time) { s.observe("clear", start, err) }(time.Now())
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.ReplaceAll(nil)
	})
	return err
}

// ReplaceAll swaps the whole table for the supplied records.
func (s *Service) ReplaceAll(ctx context.Context, records []domain.Record) (err error) {
	defer func(start time.Time) { s.observe("replace_all", start, err) }(time.Now())
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.ReplaceAll(records)
	})
	return err
}

// ExportCSV streams the current normalized record set as CSV.
func (s *Service) ExportCSV(w io.Writer) error {
	return domain.EncodeCSV(w, s.store.ListRecords())
}
