package config

import "time"

// Config is the full client configuration.
type Config struct {
	Backend   BackendConfig   `yaml:"backend" mapstructure:"backend"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Local     LocalConfig     `yaml:"local" mapstructure:"local"`
	Outbox    OutboxConfig    `yaml:"outbox" mapstructure:"outbox"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
}

// BackendConfig locates the REST API.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// AuthConfig says where the session token comes from. Token wins over
// TokenFile.
type AuthConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	TokenFile string `yaml:"token_file" mapstructure:"token_file"`
}

// LocalConfig configures the on-device database.
type LocalConfig struct {
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}

// OutboxConfig tunes delivery of queued changes.
type OutboxConfig struct {
	Interval    time.Duration `yaml:"interval" mapstructure:"interval"`
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Batch       int           `yaml:"batch" mapstructure:"batch"`
}

// LogConfig configures the optional rotating log file.
type LogConfig struct {
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// DashboardConfig configures the live dashboard of the daemon.
type DashboardConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}
