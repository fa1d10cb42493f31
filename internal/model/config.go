package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Sync backend identifiers.
const (
	BackendNone     = "none"
	BackendHTTP     = "http"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// DatabaseConfig locates the local item database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DeviceConfig identifies this installation on the items it modifies.
type DeviceConfig struct {
	ID string `mapstructure:"id" yaml:"id"`
}

// SyncConfig holds settings for the remote backend and the sync timer.
type SyncConfig struct {
	// Backend is one of "none", "http", "postgres" or "memory".
	Backend string `mapstructure:"backend" yaml:"backend"`

	// URL is the base URL of the HTTP backend.
	URL string `mapstructure:"url" yaml:"url"`

	// DSN is the Postgres connection string for the postgres backend.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// UserID is the owner identity used to filter remote rows.
	UserID string `mapstructure:"user_id" yaml:"user_id"`

	IntervalSec int     `mapstructure:"interval_sec" yaml:"interval_sec"`
	TimeoutSec  int     `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	RatePerSec  float64 `mapstructure:"rate_per_sec" yaml:"rate_per_sec"`
}

// Interval returns the background sync period.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// Timeout returns the per-cycle deadline.
func (c SyncConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// DraftConfig tunes draft persistence.
type DraftConfig struct {
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// Debounce returns the quiescence window before a draft write.
func (c DraftConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Device   DeviceConfig   `mapstructure:"device" yaml:"device"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Draft    DraftConfig    `mapstructure:"draft" yaml:"draft"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// configDir returns ~/.config/weekplanner, falling back to the working
// directory when the home directory is unknown.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "weekplanner")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/weekplanner/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{
			Path: filepath.Join(configDir(), "planner.db"),
		},
		Sync: SyncConfig{
			Backend:     BackendNone,
			IntervalSec: 60,
			TimeoutSec:  30,
			RatePerSec:  5,
		},
		Draft: DraftConfig{DebounceMs: 1000},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("sync.backend", d.Sync.Backend)
	v.SetDefault("sync.interval_sec", d.Sync.IntervalSec)
	v.SetDefault("sync.timeout_sec", d.Sync.TimeoutSec)
	v.SetDefault("sync.rate_per_sec", d.Sync.RatePerSec)
	v.SetDefault("draft.debounce_ms", d.Draft.DebounceMs)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return DefaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Sync.IntervalSec <= 0 {
		cfg.Sync.IntervalSec = 60
	}
	if cfg.Sync.TimeoutSec <= 0 {
		cfg.Sync.TimeoutSec = 30
	}
	if cfg.Draft.DebounceMs <= 0 {
		cfg.Draft.DebounceMs = 1000
	}

	switch cfg.Sync.Backend {
	case BackendNone, BackendHTTP, BackendPostgres, BackendMemory:
	default:
		return nil, fmt.Errorf("parsing config %s: unknown sync backend %q", path, cfg.Sync.Backend)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("device", cfg.Device)
	v.Set("sync", cfg.Sync)
	v.Set("draft", cfg.Draft)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
