// Package config loads cadence settings from a TOML file, CADENCE_*
// environment variables and built-in defaults, in that order of precedence
// (environment wins).
//
// The journal root and the tracked metric set are not configuration keys:
// they are user data and live in the store.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CADENCE_INGEST_WORKERS.
const EnvPrefix = "CADENCE"

// Config holds the effective configuration.
type Config struct {
	// File is the config file that was read, empty when none existed.
	File string

	Database  DatabaseConfig
	Watcher   WatcherConfig
	Ingest    IngestConfig
	Query     QueryConfig
	Dashboard DashboardConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	Path string
}

type WatcherConfig struct {
	FlushInterval  time.Duration
	MaxBatch       int
	Recursive      bool
	DeletionPolicy string
}

type IngestConfig struct {
	Workers          int
	QueueSize        int
	ProgressInterval time.Duration
}

type QueryConfig struct {
	WeekStart string
}

type DashboardConfig struct {
	Host string
	Port int
}

type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: filepath.Join(DataDir(), "cadence.db")},
		Watcher: WatcherConfig{
			FlushInterval:  500 * time.Millisecond,
			MaxBatch:       32,
			DeletionPolicy: "keep",
		},
		Ingest: IngestConfig{
			Workers:          4,
			QueueSize:        4,
			ProgressInterval: 500 * time.Millisecond,
		},
		Query:     QueryConfig{WeekStart: "sunday"},
		Dashboard: DashboardConfig{Host: "127.0.0.1", Port: 8080},
		Log:       LogConfig{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("watcher.flush_interval", d.Watcher.FlushInterval)
	v.SetDefault("watcher.max_batch", d.Watcher.MaxBatch)
	v.SetDefault("watcher.recursive", d.Watcher.Recursive)
	v.SetDefault("watcher.deletion_policy", d.Watcher.DeletionPolicy)
	v.SetDefault("ingest.workers", d.Ingest.Workers)
	v.SetDefault("ingest.queue_size", d.Ingest.QueueSize)
	v.SetDefault("ingest.progress_interval", d.Ingest.ProgressInterval)
	v.SetDefault("query.week_start", d.Query.WeekStart)
	v.SetDefault("dashboard.host", d.Dashboard.Host)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Load reads the configuration. An empty path means DefaultPath(). A missing
// file is not an error: defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = DefaultPath()
	}

	file := ""
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		file = path
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	cfg := &Config{
		File:     file,
		Database: DatabaseConfig{Path: ExpandPath(v.GetString("database.path"))},
		Watcher: WatcherConfig{
			FlushInterval:  v.GetDuration("watcher.flush_interval"),
			MaxBatch:       v.GetInt("watcher.max_batch"),
			Recursive:      v.GetBool("watcher.recursive"),
			DeletionPolicy: strings.ToLower(v.GetString("watcher.deletion_policy")),
		},
		Ingest: IngestConfig{
			Workers:          v.GetInt("ingest.workers"),
			QueueSize:        v.GetInt("ingest.queue_size"),
			ProgressInterval: v.GetDuration("ingest.progress_interval"),
		},
		Query: QueryConfig{WeekStart: strings.ToLower(v.GetString("query.week_start"))},
		Dashboard: DashboardConfig{
			Host: v.GetString("dashboard.host"),
			Port: v.GetInt("dashboard.port"),
		},
		Log: LogConfig{
			File:       ExpandPath(v.GetString("log.file")),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. Names (weekday, deletion policy) are parsed
// by the packages that use them.
func (c *Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return fmt.Errorf("database.path must not be empty")
	case c.Watcher.FlushInterval <= 0:
		return fmt.Errorf("watcher.flush_interval must be positive, got %v", c.Watcher.FlushInterval)
	case c.Watcher.MaxBatch <= 0:
		return fmt.Errorf("watcher.max_batch must be positive, got %d", c.Watcher.MaxBatch)
	case c.Ingest.Workers <= 0:
		return fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers)
	case c.Ingest.QueueSize <= 0:
		return fmt.Errorf("ingest.queue_size must be positive, got %d", c.Ingest.QueueSize)
	case c.Ingest.ProgressInterval <= 0:
		return fmt.Errorf("ingest.progress_interval must be positive, got %v", c.Ingest.ProgressInterval)
	case c.Dashboard.Port < 0 || c.Dashboard.Port > 65535:
		return fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port)
	}
	return nil
}

// fileConfig is the on-disk layout written by WriteDefault.
type fileConfig struct {
	Database struct {
		Path string `toml:"path"`
	} `toml:"database"`
	Watcher struct {
		FlushInterval  string `toml:"flush_interval"`
		MaxBatch       int    `toml:"max_batch"`
		Recursive      bool   `toml:"recursive"`
		DeletionPolicy string `toml:"deletion_policy"`
	} `toml:"watcher"`
	Ingest struct {
		Workers          int    `toml:"workers"`
		QueueSize        int    `toml:"queue_size"`
		ProgressInterval string `toml:"progress_interval"`
	} `toml:"ingest"`
	Query struct {
		WeekStart string `toml:"week_start"`
	} `toml:"query"`
	Dashboard struct {
		Host string `toml:"host"`
		Port int    `toml:"port"`
	} `toml:"dashboard"`
	Log struct {
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
	} `toml:"log"`
}

func toFile(c *Config) fileConfig {
	var f fileConfig
	f.Database.Path = c.Database.Path
	f.Watcher.FlushInterval = c.Watcher.FlushInterval.String()
	f.Watcher.MaxBatch = c.Watcher.MaxBatch
	f.Watcher.Recursive = c.Watcher.Recursive
	f.Watcher.DeletionPolicy = c.Watcher.DeletionPolicy
	f.Ingest.Workers = c.Ingest.Workers
	f.Ingest.QueueSize = c.Ingest.QueueSize
	f.Ingest.ProgressInterval = c.Ingest.ProgressInterval.String()
	f.Query.WeekStart = c.Query.WeekStart
	f.Dashboard.Host = c.Dashboard.Host
	f.Dashboard.Port = c.Dashboard.Port
	f.Log.File = c.Log.File
	f.Log.MaxSizeMB = c.Log.MaxSizeMB
	f.Log.MaxBackups = c.Log.MaxBackups
	f.Log.MaxAgeDays = c.Log.MaxAgeDays
	return f
}

// WriteDefault writes the default configuration to path as TOML. It refuses
// to overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, "# cadence configuration. Environment variables CADENCE_<SECTION>_<KEY> override these values."); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(toFile(Default())); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return f.Close()
}

// DefaultPath is the config file used when --config is not given.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "cadence.toml")
}

func xdgDir(envVar, fallback string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, "cadence")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallback, "cadence")
	}
	return filepath.Join(home, fallback, "cadence")
}

// ConfigDir returns $XDG_CONFIG_HOME/cadence.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/cadence.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ExpandPath expands a leading ~ and environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}
