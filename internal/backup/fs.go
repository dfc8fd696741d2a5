package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var _ Target = (*Filesystem)(nil)

// Filesystem stores snapshots as files under a root directory, with a
// sidecar (`<name>.meta`) holding the snapshot metadata.
type Filesystem struct {
	root string
}

// NewFilesystem returns a filesystem target rooted at path, creating it if
// needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./backups"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{root: root}, nil
}

// Driver identifies the backend.
func (f *Filesystem) Driver() Driver { return DriverFilesystem }

// sanitizeKey forbids path traversal and directory separators; snapshot keys
// are flat file names.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid snapshot key %q", key)
	}
	return key, nil
}

func (f *Filesystem) paths(key string) (dataPath, metaPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(f.root, k)
	metaPath = dataPath + ".meta"
	return dataPath, metaPath, nil
}

// Write stores a snapshot. Existing keys are refused: snapshots are
// immutable.
func (f *Filesystem) Write(ctx context.Context, key string, data []byte, metadata map[string]string) (SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return SnapshotInfo{}, err
	}
	dataPath, metaPath, err := f.paths(key)
	if err != nil {
		return SnapshotInfo{}, err
	}
	file, err := os.OpenFile(dataPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return SnapshotInfo{}, fmt.Errorf("snapshot %s already exists", key)
		}
		return SnapshotInfo{}, err
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(dataPath)
		return SnapshotInfo{}, err
	}
	if err := file.Close(); err != nil {
		return SnapshotInfo{}, err
	}
	info := SnapshotInfo{Key: key, Size: int64(len(data)), Metadata: metadata}
	if st, err := os.Stat(dataPath); err == nil {
		info.CreatedAt = st.ModTime().UTC()
	}
	meta, err := json.Marshal(info)
	if err != nil {
		return SnapshotInfo{}, err
	}
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		return SnapshotInfo{}, err
	}
	return info, nil
}

// Fetch returns the snapshot contents.
func (f *Filesystem) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dataPath, _, err := f.paths(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// List returns stored snapshots in ascending key order.
func (f *Filesystem) List(ctx context.Context) ([]SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, err
	}
	var infos []SnapshotInfo
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".meta") {
			continue
		}
		info := SnapshotInfo{Key: e.Name()}
		if meta, err := os.ReadFile(filepath.Join(f.root, e.Name()+".meta")); err == nil {
			_ = json.Unmarshal(meta, &info)
			info.Key = e.Name()
		}
		if st, err := e.Info(); err == nil {
			info.Size = st.Size()
			if info.CreatedAt.IsZero() {
				info.CreatedAt = st.ModTime().UTC()
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Remove deletes a snapshot and its sidecar. Returns false when absent.
func (f *Filesystem) Remove(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dataPath, metaPath, err := f.paths(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}
