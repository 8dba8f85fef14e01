// Package config loads the user-level yoga configuration and the per-studio
// preferences file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Remote backends
const (
	BackendREST     = "rest"
	BackendFirebase = "firebase"
	BackendMemory   = "memory"
)

// Defaults
const (
	DefaultBackend       = BackendREST
	DefaultRemoteURL     = "http://localhost:9090"
	DefaultWorkers       = 4
	DefaultLogLevel      = "warn"
	DefaultWatchInterval = 30 * time.Second
	DefaultTimeout       = 15 * time.Second
)

// Config is the content of ~/.config/yoga/config.json
type Config struct {
	Remote  RemoteConfig `json:"remote"`
	Workers int          `json:"workers,omitempty"`
	Log     LogConfig    `json:"log"`
}

// RemoteConfig selects and addresses the remote store
type RemoteConfig struct {
	Backend         string `json:"backend,omitempty"` // "rest", "firebase", "memory"
	URL             string `json:"url,omitempty"`
	AuthToken       string `json:"auth_token,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty"`
	Timeout         string `json:"timeout,omitempty"`        // Go duration, e.g. "15s"
	WatchInterval   string `json:"watch_interval,omitempty"` // Go duration, e.g. "30s"
}

// LogConfig controls the CLI's logger
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
	File   string `json:"file,omitempty"`
}

// ConfigDir returns the directory holding config.json. YOGA_CONFIG_DIR
// overrides the default of ~/.config/yoga.
func ConfigDir() (string, error) {
	if dir := os.Getenv("YOGA_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".config", "yoga"), nil
}

// Path returns the full path to config.json
func Path() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadFile reads config.json exactly as stored. A missing file yields an
// empty config.
func LoadFile() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Load returns the effective config.
// Priority: YOGA_* env > config.json > default
func Load() (*Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to config.json with 0600 permissions, since it may hold
// an auth token.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, data, 0600)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("YOGA_REMOTE"); v != "" {
		c.Remote.Backend = v
	}
	if v := os.Getenv("YOGA_REMOTE_URL"); v != "" {
		c.Remote.URL = v
	}
	if v := os.Getenv("YOGA_AUTH_TOKEN"); v != "" {
		c.Remote.AuthToken = v
	}
	if v := os.Getenv("YOGA_CREDENTIALS"); v != "" {
		c.Remote.CredentialsFile = v
	}
	if v := os.Getenv("YOGA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("YOGA_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("YOGA_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers = n
		}
	}
}

func (c *Config) applyDefaults() {
	c.Remote.Backend = strings.ToLower(strings.TrimSpace(c.Remote.Backend))
	if c.Remote.Backend == "" {
		c.Remote.Backend = DefaultBackend
	}
	if c.Remote.URL == "" && c.Remote.Backend == BackendREST {
		c.Remote.URL = DefaultRemoteURL
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate checks the backend name and the settings it requires
func (c *Config) Validate() error {
	switch c.Remote.Backend {
	case BackendREST, BackendMemory:
	case BackendFirebase:
		if c.Remote.URL == "" {
			return fmt.Errorf("firebase backend requires remote.url (the database URL)")
		}
	default:
		return fmt.Errorf("unknown remote backend %q (want rest, firebase or memory)", c.Remote.Backend)
	}
	if _, err := parseDuration(c.Remote.Timeout, DefaultTimeout); err != nil {
		return fmt.Errorf("remote.timeout: %w", err)
	}
	if _, err := parseDuration(c.Remote.WatchInterval, DefaultWatchInterval); err != nil {
		return fmt.Errorf("remote.watch_interval: %w", err)
	}
	return nil
}

// Timeout returns the per-request remote timeout
func (c *Config) Timeout() time.Duration {
	d, _ := parseDuration(c.Remote.Timeout, DefaultTimeout)
	return d
}

// WatchInterval returns how often sync watch pings the remote
func (c *Config) WatchInterval() time.Duration {
	d, _ := parseDuration(c.Remote.WatchInterval, DefaultWatchInterval)
	return d
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, err
	}
	if d <= 0 {
		return def, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

// writeAtomic writes data via a temp file in the same directory and a rename
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}
