package core

import (
	"path/filepath"
	"testing"

	"labstock/internal/infra/persistence/csvfile"
	"labstock/internal/infra/persistence/memory"
)

func TestOpenPersistentStoreDefaultsToCSV(t *testing.T) {
	t.Setenv("LABSTOCK_STORAGE_DRIVER", "")
	t.Setenv("LABSTOCK_CSV_PATH", filepath.Join(t.TempDir(), "chemicals.csv"))

	store, err := OpenPersistentStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*csvfile.Store); !ok {
		t.Fatalf("store is %T, want csvfile", store)
	}
}

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("LABSTOCK_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("store is %T, want memory", store)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("LABSTOCK_STORAGE_DRIVER", "floppy")
	if _, err := OpenPersistentStore(); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
