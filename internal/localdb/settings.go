package localdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MSghais/focus-afk-sub001/internal/model"
)

// GetSettings returns the stored settings, or model.DefaultSettings when
// nothing has been saved yet.
func (db *DB) GetSettings(ctx context.Context) (model.UserSettings, error) {
	var data, updatedAt string
	err := db.conn.QueryRowContext(ctx,
		`SELECT data, updated_at FROM user_settings WHERE id = 1`).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.UserSettings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	settings := model.DefaultSettings()
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return model.UserSettings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	settings.UpdatedAt = parseTime(updatedAt)
	return settings, nil
}

// UpdateSettings replaces the stored settings.
func (db *DB) UpdateSettings(ctx context.Context, settings model.UserSettings) (model.UserSettings, error) {
	if err := settings.Validate(); err != nil {
		return model.UserSettings{}, fmt.Errorf("invalid settings: %w", err)
	}
	settings.UpdatedAt = db.now()

	data, err := json.Marshal(settings)
	if err != nil {
		return model.UserSettings{}, fmt.Errorf("failed to marshal settings: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
	INSERT INTO user_settings (id, data, updated_at) VALUES (1, ?, ?)
	ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), formatTime(settings.UpdatedAt))
	if err != nil {
		return model.UserSettings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	return settings, nil
}
