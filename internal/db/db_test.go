package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jute-fleet-backend/config"
	"jute-fleet-backend/internal/model"
)

func TestInit_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "fleet.db"),
		MaxOpenConns: 1,
	}

	gormDB, err := Init(cfg)
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	assert.True(t, gormDB.Migrator().HasTable(&model.Machine{}))
	assert.True(t, gormDB.Migrator().HasTable(&model.RunLog{}))
	assert.True(t, gormDB.Migrator().HasTable(&model.PushSubscription{}))
	assert.True(t, gormDB.Migrator().HasColumn(&model.Machine{}, "telemetry_motor_temp"))
}

func TestInit_UnsupportedDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "oracle"})
	assert.EqualError(t, err, "unsupported database driver: oracle")
}
