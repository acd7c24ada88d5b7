// Package export dumps and restores the local store.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/MSghais/focus-afk-sub001/internal/localdb"
	"github.com/MSghais/focus-afk-sub001/internal/model"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatTOML  Format = "toml"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unknown export format %q (want json, jsonl, yaml or toml)", s)
}

// Snapshot is every local collection at one point in time.
type Snapshot struct {
	ExportedAt time.Time             `json:"exported_at" yaml:"exported_at" toml:"exported_at"`
	Settings   model.UserSettings    `json:"settings" yaml:"settings" toml:"settings"`
	Tasks      []*model.Task         `json:"tasks" yaml:"tasks" toml:"tasks"`
	Goals      []*model.Goal         `json:"goals" yaml:"goals" toml:"goals"`
	Sessions   []*model.TimerSession `json:"sessions" yaml:"sessions" toml:"sessions"`
}

// Collect reads a snapshot from db.
func Collect(ctx context.Context, db *localdb.DB, now time.Time) (*Snapshot, error) {
	tasks, err := db.GetTasks(ctx, localdb.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	goals, err := db.GetGoals(ctx, localdb.GoalFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read goals: %w", err)
	}
	sessions, err := db.GetSessions(ctx, localdb.SessionFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	settings, err := db.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return &Snapshot{
		ExportedAt: now.UTC(),
		Settings:   settings,
		Tasks:      tasks,
		Goals:      goals,
		Sessions:   sessions,
	}, nil
}

// Write encodes snap to w.
func Write(w io.Writer, snap *Snapshot, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatJSONL:
		return writeJSONL(w, snap)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(snap); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown export format %q", format)
}
