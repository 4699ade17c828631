package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"jute-fleet-backend/internal/logs"
	"jute-fleet-backend/internal/model"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig         `yaml:"server"`
	Engine     EngineConfig         `yaml:"engine"`
	Storage    StorageConfig        `yaml:"storage"`
	Database   DatabaseConfig       `yaml:"database"`
	Push       PushConfig           `yaml:"push"`
	WorkerPool WorkerPoolConfig     `yaml:"worker_pool"`
	Events     EventsConfig         `yaml:"events"`
	Logging    LoggingConfig        `yaml:"logging"`
	Users      []model.User         `yaml:"users"`
	Catalog    []model.CatalogEntry `yaml:"catalog"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RequestIPHeader string        `yaml:"request_ip_header"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// EngineConfig tunes the simulation engine.
type EngineConfig struct {
	TickIntervalMillis   int           `yaml:"tick_interval_ms"`
	TickInterval         time.Duration `yaml:"-"`
	FlushIntervalSeconds int           `yaml:"flush_interval_seconds"`
	FlushInterval        time.Duration `yaml:"-"`
	PinLifetimeMinutes   int           `yaml:"pin_lifetime_minutes"`
	PinLifetime          time.Duration `yaml:"-"`
	// OverridePin always validates when set. Leave empty outside demos.
	OverridePin  string `yaml:"override_pin"`
	DefaultOwner string `yaml:"default_owner"`
}

// StorageConfig selects where engine snapshots are persisted.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sql|badger|file|memory
	Path   string `yaml:"path"`   // badger directory or snapshot file
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres|mysql|sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// EventsConfig points at the NATS server machine events are published to.
type EventsConfig struct {
	NatsURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// LoggingConfig mirrors logs.Options.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// DefaultOwnerEmail owns every seeded machine unless configured otherwise.
const DefaultOwnerEmail = "caffinated.coders@gmail.com"

// DefaultUsers is the user directory used when none is configured.
func DefaultUsers() []model.User {
	return []model.User{
		{ID: "user-1", Name: "Caffinated Coders", Email: DefaultOwnerEmail, Role: model.RoleOwner},
		{ID: "user-2", Name: "Borrower", Email: "borrower@gmail.com", Role: model.RoleBorrower},
		{ID: "user-3", Name: "New Borrower", Email: "new.borrower@example.com", Role: model.RoleBorrower},
	}
}

// DefaultCatalog is the machine set seeded into an empty registry.
func DefaultCatalog() []model.CatalogEntry {
	return []model.CatalogEntry{
		{ID: "JRM350", Name: "JRM 350", Mode: model.ModeNormal},
		{ID: "JRM500", Name: "JRM 500", Mode: model.ModeEco},
		{ID: "JSX200", Name: "JSX 200", Mode: model.ModeNormal},
	}
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields and derives the duration fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Engine.TickIntervalMillis <= 0 {
		cfg.Engine.TickIntervalMillis = 1000
	}
	cfg.Engine.TickInterval = time.Duration(cfg.Engine.TickIntervalMillis) * time.Millisecond

	if cfg.Engine.FlushIntervalSeconds <= 0 {
		cfg.Engine.FlushIntervalSeconds = 5
	}
	cfg.Engine.FlushInterval = time.Duration(cfg.Engine.FlushIntervalSeconds) * time.Second

	if cfg.Engine.PinLifetimeMinutes <= 0 {
		cfg.Engine.PinLifetimeMinutes = 10
	}
	cfg.Engine.PinLifetime = time.Duration(cfg.Engine.PinLifetimeMinutes) * time.Minute

	if cfg.Engine.DefaultOwner == "" {
		cfg.Engine.DefaultOwner = DefaultOwnerEmail
	}
	if cfg.Engine.OverridePin != "" {
		logs.Logger.Warn("engine.override_pin is set; that code activates any machine without a valid PIN")
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sql"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "jutefleet.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		logs.Logger.Info("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Events.Subject == "" {
		cfg.Events.Subject = "machines.events"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if len(cfg.Users) == 0 {
		cfg.Users = DefaultUsers()
	}
	if len(cfg.Catalog) == 0 {
		cfg.Catalog = DefaultCatalog()
	}
}
