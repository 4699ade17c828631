package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"

	"jute-fleet-backend/internal/model"
)

var snapshotKey = []byte("fleet:snapshot")

// BadgerStore keeps the whole snapshot under a single key.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// Load returns the stored snapshot, or an empty one if nothing was saved yet.
func (s *BadgerStore) Load(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &snap)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Snapshot{}, nil
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return snap, nil
}

// Save overwrites the snapshot key in one transaction.
func (s *BadgerStore) Save(ctx context.Context, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey, data)
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
