package main

import (
	"os"

	"github.com/spf13/cobra"

	"jute-fleet-backend/config"
	"jute-fleet-backend/internal/logs"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		logs.Logger.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "jutefleetd",
		Short:         "Jute machine fleet backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default $CONFIG_PATH or ./config/config.yaml)")

	load := func() (*config.Config, error) {
		return loadConfig(configPath)
	}
	cmd.AddCommand(serveCmd(load), dumpCmd(load))
	return cmd
}

// resolveConfigPath picks the flag, then CONFIG_PATH, then the local default.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "./config/config.yaml" // Default path for local development
}

func loadConfig(flag string) (*config.Config, error) {
	path := resolveConfigPath(flag)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logs.Init(logs.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}); err != nil {
		return nil, err
	}
	logs.Logger.WithField("path", path).Info("configuration loaded")
	return cfg, nil
}
