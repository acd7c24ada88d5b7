package model

import "time"

// Theme is the UI colour scheme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// UserSettings is the single per-user preferences record.
type UserSettings struct {
	// Durations are in minutes.
	DefaultFocusDuration int `json:"default_focus_duration" yaml:"default_focus_duration" toml:"default_focus_duration"`
	DefaultBreakDuration int `json:"default_break_duration" yaml:"default_break_duration" toml:"default_break_duration"`
	DefaultDeepDuration  int `json:"default_deep_duration" yaml:"default_deep_duration" toml:"default_deep_duration"`

	AutoStartBreaks      bool  `json:"auto_start_breaks" yaml:"auto_start_breaks" toml:"auto_start_breaks"`
	AutoStartFocus       bool  `json:"auto_start_focus" yaml:"auto_start_focus" toml:"auto_start_focus"`
	NotificationsEnabled bool  `json:"notifications_enabled" yaml:"notifications_enabled" toml:"notifications_enabled"`
	Theme                Theme `json:"theme" yaml:"theme" toml:"theme"`

	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at" toml:"updated_at"`
}

// DefaultSettings returns the settings used before the user changes anything.
func DefaultSettings() UserSettings {
	return UserSettings{
		DefaultFocusDuration: 25,
		DefaultBreakDuration: 5,
		DefaultDeepDuration:  90,
		NotificationsEnabled: true,
		Theme:                ThemeSystem,
	}
}

// Validate checks field values.
func (s *UserSettings) Validate() error {
	if s.DefaultFocusDuration < 0 || s.DefaultBreakDuration < 0 || s.DefaultDeepDuration < 0 {
		return ErrInvalidDuration
	}
	switch s.Theme {
	case ThemeLight, ThemeDark, ThemeSystem:
		return nil
	}
	return ErrInvalidTheme
}

// DurationFor returns the configured length of a session type.
func (s *UserSettings) DurationFor(t SessionType) time.Duration {
	switch t {
	case SessionBreak:
		return time.Duration(s.DefaultBreakDuration) * time.Minute
	case SessionDeep:
		return time.Duration(s.DefaultDeepDuration) * time.Minute
	default:
		return time.Duration(s.DefaultFocusDuration) * time.Minute
	}
}
