package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			TokenFile: filepath.Join(dir, "token.json"),
		},
		Local: LocalConfig{
			DBPath: filepath.Join(dir, "focus.db"),
		},
		Outbox: OutboxConfig{
			Interval:    5 * time.Second,
			MaxAttempts: 8,
			Batch:       50,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Dashboard: DashboardConfig{
			Port: 7777,
		},
	}
}

// Dir returns ~/.focus, or .focus when the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".focus"
	}
	return filepath.Join(home, ".focus")
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}
