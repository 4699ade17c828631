package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/moby/sys/atomicwriter"

	"jute-fleet-backend/internal/model"
)

// FileStore writes the snapshot as a JSON document. Writes go to a temporary
// file that is renamed over the previous snapshot.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (model.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Snapshot{}, nil
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return snap, nil
}

func (s *FileStore) Save(ctx context.Context, snap model.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := atomicwriter.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
