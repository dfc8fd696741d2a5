package core

import (
	"fmt"
	"os"

	"labstock/internal/infra/persistence/csvfile"
	"labstock/internal/infra/persistence/memory"
	"labstock/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	// StorageCSV is the canonical flat-file backend.
	StorageCSV StorageDriver = "csv"
	// StorageMemory keeps records in memory only (tests / ephemeral).
	StorageMemory StorageDriver = "memory"
)

// OpenPersistentStore selects a backend using environment variables,
// defaulting to the CSV file store.
//
//	LABSTOCK_STORAGE_DRIVER: csv|memory (default csv)
//	LABSTOCK_CSV_PATH: path to the data file (default ./chemicals_master.csv)
//
// A corrupt CSV file still yields a usable empty store; the wrapped
// csvfile.ErrCorrupt is returned alongside it so callers can warn.
func OpenPersistentStore() (domain.PersistentStore, error) {
	driver := os.Getenv("LABSTOCK_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageCSV)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageCSV:
		return csvfile.NewStore(os.Getenv("LABSTOCK_CSV_PATH"))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
