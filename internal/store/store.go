package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"jute-fleet-backend/internal/model"
)

// Store persists engine snapshots. Save replaces the previous snapshot as a
// whole; a failed Save leaves the previous snapshot readable.
type Store interface {
	Load(ctx context.Context) (model.Snapshot, error)
	Save(ctx context.Context, snap model.Snapshot) error
	Close() error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// Load returns every machine and run log, run logs newest first.
func (s *gormStore) Load(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	if err := s.db.WithContext(ctx).Order("id").Find(&snap.Machines).Error; err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to load machines: %w", err)
	}
	if err := s.db.WithContext(ctx).Order("seq DESC").Find(&snap.RunLogs).Error; err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to load run logs: %w", err)
	}
	return snap, nil
}

// Save swaps the stored rows for the snapshot inside one transaction.
func (s *gormStore) Save(ctx context.Context, snap model.Snapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})

		if err := all.Delete(&model.Machine{}).Error; err != nil {
			return fmt.Errorf("failed to clear machines: %w", err)
		}
		if len(snap.Machines) > 0 {
			if err := tx.CreateInBatches(snap.Machines, 100).Error; err != nil {
				return fmt.Errorf("failed to write machines: %w", err)
			}
		}

		if err := all.Delete(&model.RunLog{}).Error; err != nil {
			return fmt.Errorf("failed to clear run logs: %w", err)
		}
		if len(snap.RunLogs) > 0 {
			if err := tx.CreateInBatches(snap.RunLogs, 100).Error; err != nil {
				return fmt.Errorf("failed to write run logs: %w", err)
			}
		}
		return nil
	})
}

// Close is a no-op; the caller owns the *gorm.DB.
func (s *gormStore) Close() error {
	return nil
}
