// Package config loads the client configuration.
//
// Values are resolved in this order, later sources winning: built-in
// defaults, the YAML file, OFFSYNC_* environment variables, command line
// flags (applied by the CLI).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iudanet/offsync/internal/client/connectivity"
	syncengine "github.com/iudanet/offsync/internal/client/sync"
)

// Environment variables that override the file.
const (
	EnvServerURL = "OFFSYNC_SERVER_URL"
	EnvToken     = "OFFSYNC_TOKEN"
	EnvDBPath    = "OFFSYNC_DB_PATH"
	EnvLogLevel  = "OFFSYNC_LOG_LEVEL"
)

// Config is the client configuration file.
type Config struct {
	ServerURL    string             `yaml:"server_url"`
	Token        string             `yaml:"token"`
	DBPath       string             `yaml:"db_path"`
	MetricsAddr  string             `yaml:"metrics_addr"`
	Log          LogConfig          `yaml:"log"`
	Sync         SyncConfig         `yaml:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
}

// LogConfig описывает вывод логов
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text или json
	File       string `yaml:"file"`   // пусто = stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// SyncConfig holds the retry policy.
type SyncConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	Jitter         float64       `yaml:"jitter"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ConnectivityConfig holds probe timing.
type ConnectivityConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Dwell        time.Duration `yaml:"dwell"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	sc := syncengine.DefaultConfig()
	cc := connectivity.DefaultConfig()

	return &Config{
		ServerURL: "http://localhost:8080",
		DBPath:    "offsync.db",
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Sync: SyncConfig{
			MaxAttempts:    sc.MaxAttempts,
			BaseDelay:      sc.BaseDelay,
			MaxDelay:       sc.MaxDelay,
			Jitter:         sc.Jitter,
			RequestTimeout: sc.RequestTimeout,
		},
		Connectivity: ConnectivityConfig{
			PollInterval: cc.PollInterval,
			Dwell:        cc.Dwell,
			ProbeTimeout: cc.ProbeTimeout,
		},
	}
}

// DefaultPath returns ~/.offsync/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".offsync", "config.yaml")
}

// Load reads path on top of the defaults and applies the environment.
// A missing file is not an error unless required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 -- путь к конфигу задает пользователь
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvServerURL); ok && v != "" {
		c.ServerURL = v
	}
	if v, ok := lookup(EnvToken); ok {
		c.Token = v
	}
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		c.DBPath = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate rejects values the client cannot work with.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server_url must be an http(s) URL, got %q", c.ServerURL))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path must not be empty"))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if c.Sync.MaxAttempts < 1 {
		errs = append(errs, errors.New("sync.max_attempts must be at least 1"))
	}
	if c.Sync.BaseDelay <= 0 {
		errs = append(errs, errors.New("sync.base_delay must be positive"))
	}
	if c.Sync.MaxDelay < c.Sync.BaseDelay {
		errs = append(errs, errors.New("sync.max_delay must not be less than sync.base_delay"))
	}
	if c.Sync.Jitter < 0 || c.Sync.Jitter >= 1 {
		errs = append(errs, errors.New("sync.jitter must be in [0, 1)"))
	}
	if c.Sync.RequestTimeout <= 0 {
		errs = append(errs, errors.New("sync.request_timeout must be positive"))
	}

	if c.Connectivity.PollInterval <= 0 {
		errs = append(errs, errors.New("connectivity.poll_interval must be positive"))
	}
	if c.Connectivity.Dwell < 0 {
		errs = append(errs, errors.New("connectivity.dwell must not be negative"))
	}
	if c.Connectivity.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("connectivity.probe_timeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// EngineConfig converts the sync section for the engine.
func (c *Config) EngineConfig() syncengine.Config {
	return syncengine.Config{
		MaxAttempts:    c.Sync.MaxAttempts,
		BaseDelay:      c.Sync.BaseDelay,
		MaxDelay:       c.Sync.MaxDelay,
		Jitter:         c.Sync.Jitter,
		RequestTimeout: c.Sync.RequestTimeout,
	}
}

// MonitorConfig converts the connectivity section for the monitor.
func (c *Config) MonitorConfig() connectivity.Config {
	return connectivity.Config{
		PollInterval: c.Connectivity.PollInterval,
		Dwell:        c.Connectivity.Dwell,
		ProbeTimeout: c.Connectivity.ProbeTimeout,
	}
}

// Save writes c to path with owner-only permissions, since it may hold a token.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
