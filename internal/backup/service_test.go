package backup

import (
	"context"
	"testing"
	"time"

	"labstock/internal/infra/persistence/memory"
	"labstock/pkg/domain"
)

func seedStore(t *testing.T, names ...string) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	for _, name := range names {
		if err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, err := tx.CreateRecord(domain.Record{Name: name})
			return err
		}); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	return store
}

func TestSnapshotAndRestore(t *testing.T) {
	store := seedStore(t, "Acetone", "Toluene")
	svc := NewService(store, NewMemory())
	ctx := context.Background()

	info, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if info.Metadata["records"] != "2" {
		t.Fatalf("metadata = %v", info.Metadata)
	}

	// Wreck the live table, then restore.
	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.ReplaceAll(nil)
	}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	count, err := svc.Restore(ctx, info.Key)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if count != 2 {
		t.Fatalf("restored %d records, want 2", count)
	}
	records := store.ListRecords()
	if len(records) != 2 || records[0].Name != "Acetone" {
		t.Fatalf("records after restore: %+v", records)
	}
}

func TestRestoreMissingSnapshot(t *testing.T) {
	svc := NewService(seedStore(t), NewMemory())
	if _, err := svc.Restore(context.Background(), "chemicals-00000000-000000.csv"); err == nil {
		t.Fatal("expected error for missing snapshot")
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	store := seedStore(t, "Acetone")
	svc := NewService(store, NewMemory())
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.nowFn = func() time.Time { return at }
		if _, err := svc.Snapshot(ctx); err != nil {
			t.Fatalf("snapshot %d: %v", i, err)
		}
	}

	removed, err := svc.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("removed %d snapshots, want 3", len(removed))
	}
	infos, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("kept %d snapshots, want 2", len(infos))
	}
	if infos[0].Key != SnapshotKey(base.Add(3*time.Hour)) {
		t.Fatalf("kept wrong snapshots: %v", infos)
	}

	// Pruning below the retention count is a no-op.
	removed, err = svc.Prune(ctx, 10)
	if err != nil || removed != nil {
		t.Fatalf("prune no-op = %v, %v", removed, err)
	}
	if _, err := svc.Prune(ctx, -1); err == nil {
		t.Fatal("negative keep accepted")
	}
}
