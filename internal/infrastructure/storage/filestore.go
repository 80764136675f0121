// Package storage provides snapshot file placement and archival.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SnapshotFileStore hands out paths for downloaded snapshot files under a
// single configured directory, one subdirectory per day to keep directory
// sizes bounded.
type SnapshotFileStore struct {
	dir string
}

// NewSnapshotFileStore creates the store and its backing directory
func NewSnapshotFileStore(dir string) (*SnapshotFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &SnapshotFileStore{dir: dir}, nil
}

// Create opens a new uniquely named snapshot file for writing. The caller
// owns the file handle; the commit barrier owns the file's lifetime once the
// snapshot is registered.
func (s *SnapshotFileStore) Create(sourceID string) (*os.File, error) {
	day := time.Now().UTC().Format("2006-01-02")
	dir := filepath.Join(s.dir, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot day directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.jsonl", sourceID, uuid.New().String())
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot file: %w", err)
	}
	return file, nil
}

// Dir returns the root snapshot directory
func (s *SnapshotFileStore) Dir() string {
	return s.dir
}
