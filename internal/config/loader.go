package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: FOCUS_BACKEND_BASE_URL sets
// backend.base_url.
const EnvPrefix = "FOCUS"

// Load reads configuration from defaults, the YAML file at path and the
// environment, later sources winning. An empty path reads DefaultPath; a
// missing file is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// appear in no file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("backend.base_url", d.Backend.BaseURL)
	v.SetDefault("backend.timeout", d.Backend.Timeout)
	v.SetDefault("auth.token", d.Auth.Token)
	v.SetDefault("auth.token_file", d.Auth.TokenFile)
	v.SetDefault("local.db_path", d.Local.DBPath)
	v.SetDefault("outbox.interval", d.Outbox.Interval)
	v.SetDefault("outbox.max_attempts", d.Outbox.MaxAttempts)
	v.SetDefault("outbox.batch", d.Outbox.Batch)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
}

// Validate checks values that would fail later in less obvious ways.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url %q must be an http(s) URL", c.Backend.BaseURL)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if c.Local.DBPath == "" {
		return fmt.Errorf("local.db_path is required")
	}
	if c.Outbox.Interval <= 0 {
		return fmt.Errorf("outbox.interval must be positive")
	}
	if c.Outbox.MaxAttempts < 1 || c.Outbox.Batch < 1 {
		return fmt.Errorf("outbox.max_attempts and outbox.batch must be at least 1")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port %d out of range", c.Dashboard.Port)
	}
	return nil
}
