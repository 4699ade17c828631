package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"jute-fleet-backend/config"
	"jute-fleet-backend/internal/db"
)

func dumpCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the persisted fleet snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			var gormDB *gorm.DB
			if cfg.Storage.Driver == "sql" {
				gormDB, err = db.Init(&cfg.Database)
				if err != nil {
					return fmt.Errorf("failed to initialize database: %w", err)
				}
				if sqlDB, err := gormDB.DB(); err == nil {
					defer sqlDB.Close()
				}
			}
			return dump(cmd.Context(), cfg.Storage, gormDB, cmd.OutOrStdout())
		},
	}
}

func dump(ctx context.Context, cfg config.StorageConfig, gormDB *gorm.DB, out io.Writer) error {
	snapshots, err := openStore(cfg, gormDB)
	if err != nil {
		return err
	}
	defer snapshots.Close()

	snap, err := snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
