package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"evcal/internal/persist"
)

// StorageConfig selects where the event blob lives.
type StorageConfig struct {
	// Driver is one of "file", "sqlite" or "memory".
	Driver string `yaml:"driver" json:"driver" env:"EVCAL_STORAGE_DRIVER"`
	// Path is a directory for the file driver and a database file for sqlite.
	Path string `yaml:"path" json:"path" env:"EVCAL_STORAGE_PATH"`
	// Key is the blob key the events are stored under.
	Key string `yaml:"key" json:"key" env:"EVCAL_STORAGE_KEY"`
}

// BackupConfig controls periodic snapshots of the event blob.
type BackupConfig struct {
	// Cron is a cron-style schedule (e.g. "0 3 * * *"). Empty disables backups.
	Cron string `yaml:"cron" json:"cron" env:"EVCAL_BACKUP_CRON"`
	Dir  string `yaml:"dir" json:"dir" env:"EVCAL_BACKUP_DIR"`
	// Keep is how many snapshots are retained.
	Keep int `yaml:"keep" json:"keep" env:"EVCAL_BACKUP_KEEP"`
}

// ImportConfig controls POST /api/import?url=.
type ImportConfig struct {
	// AllowPrivateHosts lets URL imports reach loopback, link-local and
	// private addresses. Off by default.
	AllowPrivateHosts bool `yaml:"allow_private_hosts" json:"allow_private_hosts" env:"EVCAL_IMPORT_ALLOW_PRIVATE_HOSTS"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" env:"EVCAL_LISTEN"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level" env:"EVCAL_LOG_LEVEL"`

	// WeekStart controls which weekday starts a row of the month grid:
	// "sunday" (default) or "monday".
	WeekStart string `yaml:"week_start" json:"week_start" env:"EVCAL_WEEK_START"`

	Storage StorageConfig `yaml:"storage" json:"storage"`
	Backup  BackupConfig  `yaml:"backup" json:"backup"`
	Import  ImportConfig  `yaml:"import" json:"import"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:8080",
		LogLevel:  "info",
		WeekStart: "sunday",
		Storage: StorageConfig{
			Driver: persist.DriverFile,
			Path:   "./var",
			Key:    persist.DefaultKey,
		},
		Backup: BackupConfig{
			Dir:  "./var/backups",
			Keep: 7,
		},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	switch strings.ToLower(c.WeekStart) {
	case "sunday", "monday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		c.WeekStart = def.WeekStart
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case persist.DriverSQLite:
			c.Storage.Path = "./var/evcal.db"
		default:
			c.Storage.Path = def.Storage.Path
		}
	}
	if c.Storage.Key == "" {
		c.Storage.Key = def.Storage.Key
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = def.Backup.Dir
	}
	if c.Backup.Keep <= 0 {
		c.Backup.Keep = def.Backup.Keep
	}
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case persist.DriverFile, persist.DriverSQLite, persist.DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// Load loads configuration from the given YAML path, then applies .env and
// environment overrides.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - If the file exists, it is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg, err := loadFile(path)
	if err != nil {
		return cfg, err
	}

	// A missing .env is the normal case.
	_ = godotenv.Load()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg as YAML to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return persist.WriteFileAtomic(path, data)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
