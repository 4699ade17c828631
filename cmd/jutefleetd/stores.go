package main

import (
	"fmt"

	"gorm.io/gorm"

	"jute-fleet-backend/config"
	"jute-fleet-backend/internal/store"
)

// openStore builds the snapshot store selected by cfg. gormDB is only used
// by the sql driver.
func openStore(cfg config.StorageConfig, gormDB *gorm.DB) (store.Store, error) {
	switch cfg.Driver {
	case "sql":
		if gormDB == nil {
			return nil, fmt.Errorf("storage driver sql needs a database")
		}
		return store.NewGormStore(gormDB), nil
	case "badger":
		if cfg.Path == "" {
			return nil, fmt.Errorf("storage driver badger needs storage.path")
		}
		return store.NewBadgerStore(cfg.Path)
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("storage driver file needs storage.path")
		}
		return store.NewFileStore(cfg.Path), nil
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
