package remotesrv

import (
	"os"
	"time"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	AuthToken       string // empty disables auth
	ShutdownTimeout time.Duration
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"
	MaxBodyBytes    int64
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":9090",
		DBPath:          "./data/remote.db",
		ShutdownTimeout: 15 * time.Second,
		LogFormat:       "json",
		LogLevel:        "info",
		MaxBodyBytes:    1 << 20,
	}

	if v := os.Getenv("YOGA_REMOTE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("YOGA_REMOTE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("YOGA_REMOTE_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := os.Getenv("YOGA_REMOTE_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("YOGA_REMOTE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("YOGA_REMOTE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}
