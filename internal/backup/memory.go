package backup

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

var _ Target = (*Memory)(nil)

// Memory keeps snapshots in process memory. Used in tests.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
	nowFn func() time.Time
}

type memoryBlob struct {
	data []byte
	info SnapshotInfo
}

// NewMemory constructs an empty in-memory target.
func NewMemory() *Memory {
	return &Memory{
		blobs: make(map[string]memoryBlob),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// Driver identifies the backend.
func (m *Memory) Driver() Driver { return DriverMemory }

// Write stores a snapshot; existing keys are refused.
func (m *Memory) Write(ctx context.Context, key string, data []byte, metadata map[string]string) (SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return SnapshotInfo{}, err
	}
	if _, err := sanitizeKey(key); err != nil {
		return SnapshotInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.blobs[key]; exists {
		return SnapshotInfo{}, fmt.Errorf("snapshot %s already exists", key)
	}
	info := SnapshotInfo{
		Key:       key,
		Size:      int64(len(data)),
		Metadata:  metadata,
		CreatedAt: m.nowFn(),
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.blobs[key] = memoryBlob{data: cp, info: info}
	return info, nil
}

// Fetch returns the snapshot contents.
func (m *Memory) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	return cp, nil
}

// List returns stored snapshots in ascending key order.
func (m *Memory) List(ctx context.Context) ([]SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]SnapshotInfo, 0, len(m.blobs))
	for _, b := range m.blobs {
		infos = append(infos, b.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Remove deletes a snapshot. Returns false when absent.
func (m *Memory) Remove(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		return false, nil
	}
	delete(m.blobs, key)
	return true, nil
}
