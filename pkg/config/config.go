// Package config loads workmem settings from a YAML file.
//
// Precedence: CLI flags > environment variables > config file > defaults.
// The file lives at ~/.workmem/config.yaml unless a path is given; a missing
// file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // diff.location must resolve without a system zoneinfo

	"gopkg.in/yaml.v3"
)

// Environment overrides applied by Load.
const (
	EnvDatabase  = "WORKMEM_DB"
	EnvVerbosity = "WORKMEM_LOG_LEVEL"
)

// Config is the complete workmem configuration.
type Config struct {
	Storage    StorageConfig   `yaml:"storage"`
	Watchers   WatcherConfig   `yaml:"watchers"`
	Diff       DiffConfig      `yaml:"diff"`
	Tombstones TombstoneConfig `yaml:"tombstones"`
	Output     OutputConfig    `yaml:"output"`
	Logging    LoggingConfig   `yaml:"logging"`
	Metrics    MetricsConfig   `yaml:"metrics"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// WatcherConfig controls watcher expiry.
type WatcherConfig struct {
	// TTL is the sliding idle timeout, reset by every successful poll.
	TTL time.Duration `yaml:"ttl"`
	// SweepInterval is how often idle watchers are expired in the
	// background. Zero disables the sweeper; expiry is still detected on poll.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DiffConfig controls "since" resolution.
type DiffConfig struct {
	DefaultWindow time.Duration `yaml:"default_window"`
	// Location is an IANA zone name used for "today", "this week" and
	// timestamps without an offset.
	Location string `yaml:"location"`
}

// TombstoneConfig controls tombstone retention. Zero keeps them forever.
type TombstoneConfig struct {
	Retention time.Duration `yaml:"retention"`
}

// OutputConfig controls tool output size.
type OutputConfig struct {
	// TokenBudget caps poll and diff output; zero disables the cap.
	TokenBudget int `yaml:"token_budget"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	// Verbosity is one of debug, info, warn, error (or quiet).
	Verbosity string `yaml:"verbosity"`
	// Directory overrides ~/.workmem/logs.
	Directory string `yaml:"directory"`
}

// MetricsConfig controls the Prometheus endpoint of long-running commands.
type MetricsConfig struct {
	// Address is the listen address for /metrics, e.g. "127.0.0.1:9464".
	// Empty disables the endpoint.
	Address string `yaml:"address"`
}

// DefaultDir returns ~/.workmem.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".workmem"), nil
}

// DefaultPath returns ~/.workmem/config.yaml.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	dbPath := "workmem.db"
	if dir, err := DefaultDir(); err == nil {
		dbPath = filepath.Join(dir, "memory.db")
	}
	return &Config{
		Storage: StorageConfig{Path: dbPath},
		Watchers: WatcherConfig{
			TTL:           30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Diff: DiffConfig{
			DefaultWindow: time.Hour,
			Location:      "UTC",
		},
		Tombstones: TombstoneConfig{Retention: 30 * 24 * time.Hour},
		Output:     OutputConfig{TokenBudget: 4000},
		Logging:    LoggingConfig{Verbosity: "info"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvDatabase)); v != "" {
		c.Storage.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvVerbosity)); v != "" {
		c.Logging.Verbosity = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Watchers.TTL <= 0 {
		return fmt.Errorf("watchers.ttl must be positive, got %s", c.Watchers.TTL)
	}
	if c.Watchers.SweepInterval < 0 {
		return fmt.Errorf("watchers.sweep_interval cannot be negative")
	}
	if c.Diff.DefaultWindow <= 0 {
		return fmt.Errorf("diff.default_window must be positive, got %s", c.Diff.DefaultWindow)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Tombstones.Retention < 0 {
		return fmt.Errorf("tombstones.retention cannot be negative")
	}
	if c.Output.TokenBudget < 0 {
		return fmt.Errorf("output.token_budget cannot be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Verbosity)) {
	case "", "debug", "info", "warn", "warning", "error", "quiet":
	default:
		return fmt.Errorf("logging.verbosity must be one of debug, info, warn, error, quiet; got %q", c.Logging.Verbosity)
	}
	return nil
}

// Location resolves Diff.Location. Empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Diff.Location)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("diff.location %q: %w", name, err)
	}
	return loc, nil
}

// Save writes c to path as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
