package backup

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"labstock/pkg/domain"
)

// Service snapshots the live record set to a target and restores from it.
type Service struct {
	store  domain.PersistentStore
	target Target
	nowFn  func() time.Time
}

// NewService constructs a backup service over the given store and target.
func NewService(store domain.PersistentStore, target Target) *Service {
	return &Service{
		store:  store,
		target: target,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// Target returns the configured backup target.
func (s *Service) Target() Target { return s.target }

// SnapshotKey names a snapshot taken at t.
func SnapshotKey(t time.Time) string {
	return "chemicals-" + t.UTC().Format("20060102-150405") + ".csv"
}

// Snapshot serializes the current normalized record set and writes it to the
// target under a timestamped key.
func (s *Service) Snapshot(ctx context.Context) (SnapshotInfo, error) {
	records := s.store.ListRecords()
	var buf bytes.Buffer
	if err := domain.EncodeCSV(&buf, records); err != nil {
		return SnapshotInfo{}, fmt.Errorf("encode snapshot: %w", err)
	}
	key := SnapshotKey(s.nowFn())
	return s.target.Write(ctx, key, buf.Bytes(), map[string]string{
		"records": strconv.Itoa(len(records)),
	})
}

// List returns the stored snapshots, oldest first.
func (s *Service) List(ctx context.Context) ([]SnapshotInfo, error) {
	return s.target.List(ctx)
}

// Restore replaces the live table wholesale with the contents of the named
// snapshot.
func (s *Service) Restore(ctx context.Context, key string) (int, error) {
	data, err := s.target.Fetch(ctx, key)
	if err != nil {
		return 0, err
	}
	records, _, err := domain.DecodeCSV(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.ReplaceAll(records)
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Prune removes the oldest snapshots beyond keep, returning the removed keys.
func (s *Service) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must be non-negative")
	}
	infos, err := s.target.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(infos) <= keep {
		return nil, nil
	}
	var removed []string
	for _, info := range infos[:len(infos)-keep] {
		ok, err := s.target.Remove(ctx, info.Key)
		if err != nil {
			return removed, err
		}
		if ok {
			removed = append(removed, info.Key)
		}
	}
	return removed, nil
}
