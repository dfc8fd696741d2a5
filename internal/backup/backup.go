// Package backup pushes CSV snapshots of the inventory to a configurable
// target (local directory, in-memory, or an S3-compatible bucket) and can
// restore the live table from any stored snapshot.
package backup

import (
	"context"
	"errors"
	"time"
)

// Driver identifies a concrete backup target implementation.
type Driver string

const (
	// DriverFilesystem stores snapshots in a local directory (default, dev).
	DriverFilesystem Driver = "fs"
	// DriverS3 stores snapshots in an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps snapshots in memory (tests).
	DriverMemory Driver = "memory"
)

// ErrNotFound indicates the requested snapshot does not exist.
var ErrNotFound = errors.New("backup: snapshot not found")

// SnapshotInfo describes one stored snapshot.
type SnapshotInfo struct {
	Key       string            `json:"key"`
	Size      int64             `json:"size_bytes"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Target is the interface snapshot storage backends implement. Keys are flat
// names; List returns ascending key order, which for timestamped snapshot
// names is also chronological.
type Target interface {
	Write(ctx context.Context, key string, data []byte, metadata map[string]string) (SnapshotInfo, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context) ([]SnapshotInfo, error)
	Remove(ctx context.Context, key string) (bool, error)
	Driver() Driver
}
