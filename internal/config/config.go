// Package config provides configuration for the spacemeta command and its
// long-running serve mode.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SPACEMETA_DATA_DIR.
const EnvPrefix = "SPACEMETA"

// Config holds the spacemeta configuration.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir" split_words:"true"`

	// CatalogPath is the SQLite catalog file; defaults to <data_dir>/catalog.db
	CatalogPath string `json:"catalog_path" yaml:"catalog_path" split_words:"true"`

	Log      LogConfig      `json:"log" yaml:"log"`
	Resolver ResolverConfig `json:"resolver" yaml:"resolver"`
	Advisor  AdvisorConfig  `json:"advisor" yaml:"advisor"`
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Development switches to the human readable console encoder
	Development bool `json:"development" yaml:"development"`
}

// ResolverConfig holds resolver configuration.
type ResolverConfig struct {
	// CacheSize is the number of plans kept by the resolver
	CacheSize int `json:"cache_size" yaml:"cache_size" split_words:"true"`
}

// AdvisorConfig holds index advisor configuration.
type AdvisorConfig struct {
	// Threshold is the miss count at which a field set gets an index suggestion
	Threshold int64 `json:"threshold" yaml:"threshold"`

	// Interval is the time between advisor evaluations
	Interval time.Duration `json:"interval" yaml:"interval"`

	// AutoCreate creates suggested indexes instead of only logging them
	AutoCreate bool `json:"auto_create" yaml:"auto_create" split_words:"true"`

	// MaxSuggestions caps the suggestions per evaluation
	MaxSuggestions int `json:"max_suggestions" yaml:"max_suggestions" split_words:"true"`

	// StatsWindow is how long miss statistics are kept
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window" split_words:"true"`
}

// SnapshotConfig holds schema snapshot storage configuration.
type SnapshotConfig struct {
	// Storage is the storage type: local, s3
	Storage string `json:"storage" yaml:"storage"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is prepended to every snapshot object key
	Prefix string `json:"prefix" yaml:"prefix"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing, needed by most S3-compatible stores
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style" split_words:"true"`
}

// MetricsConfig holds the metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the listen address of the serve mode HTTP endpoints; empty disables them
	Addr string `json:"addr" yaml:"addr"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/spacemeta",
		Log: LogConfig{
			Level: "info",
		},
		Resolver: ResolverConfig{
			CacheSize: 1024,
		},
		Advisor: AdvisorConfig{
			Threshold:      100,
			Interval:       5 * time.Minute,
			MaxSuggestions: 10,
			StatsWindow:    time.Hour,
		},
		Snapshot: SnapshotConfig{
			Storage: "local",
			Prefix:  "snapshots",
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/spacemeta"
	}
	if c.CatalogPath == "" {
		c.CatalogPath = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.Snapshot.Storage == "local" && c.Snapshot.Path == "" {
		c.Snapshot.Path = filepath.Join(c.DataDir, "snapshots")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn or error)", c.Log.Level)
	}

	if c.Snapshot.Storage != "local" && c.Snapshot.Storage != "s3" {
		return fmt.Errorf("invalid snapshot storage: %s (must be local or s3)", c.Snapshot.Storage)
	}

	if c.Snapshot.Storage == "s3" && c.Snapshot.S3.Bucket == "" {
		return fmt.Errorf("snapshot.s3.bucket is required when snapshot storage is s3")
	}

	if c.Resolver.CacheSize <= 0 {
		return fmt.Errorf("resolver.cache_size must be positive, got %d", c.Resolver.CacheSize)
	}

	if c.Advisor.Threshold <= 0 {
		return fmt.Errorf("advisor.threshold must be positive, got %d", c.Advisor.Threshold)
	}

	if c.Advisor.Interval <= 0 {
		return fmt.Errorf("advisor.interval must be positive, got %s", c.Advisor.Interval)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies SPACEMETA_* environment overrides to cfg. Variables
// from envFiles are loaded first without overriding the real environment;
// missing files are ignored.
func LoadFromEnv(cfg *Config, envFiles ...string) error {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	// The AWS SDK reads its own variable names.
	if v := os.Getenv(EnvPrefix + "_AWS_ACCESS_KEY_ID"); v != "" {
		os.Setenv("AWS_ACCESS_KEY_ID", v)
	}
	if v := os.Getenv(EnvPrefix + "_AWS_SECRET_ACCESS_KEY"); v != "" {
		os.Setenv("AWS_SECRET_ACCESS_KEY", v)
	}
	return nil
}

// Load builds the effective configuration: defaults, then the optional
// file, then the environment.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg, envFiles...); err != nil {
		return nil, err
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.CatalogPath),
	}
	if c.Snapshot.Storage == "local" {
		dirs = append(dirs, c.Snapshot.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
