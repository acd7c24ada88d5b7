package model

import (
	"fmt"
	"strings"
	"time"
)

// Priority ranks tasks.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority accepts the priority names case-insensitively.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PriorityMedium, nil
	}
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return p, nil
}

// Task is a to-do item, optionally linked to one or more goals.
type Task struct {
	Ref Ref `json:"ref" yaml:"ref" toml:"ref"`

	Title       string   `json:"title" yaml:"title" toml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Completed   bool     `json:"completed" yaml:"completed" toml:"completed"`
	Priority    Priority `json:"priority" yaml:"priority" toml:"priority"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty" toml:"category,omitempty"`
	Archived    bool     `json:"archived" yaml:"archived" toml:"archived"`

	DueDate          *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty" toml:"due_date,omitempty"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty" yaml:"estimated_minutes,omitempty" toml:"estimated_minutes,omitempty"`

	// GoalID is the primary linked goal; GoalIDs lists every linked goal.
	GoalID  string   `json:"goal_id,omitempty" yaml:"goal_id,omitempty" toml:"goal_id,omitempty"`
	GoalIDs []string `json:"goal_ids,omitempty" yaml:"goal_ids,omitempty" toml:"goal_ids,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at" toml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at" toml:"updated_at"`
}

// ID returns the live id.
func (t *Task) ID() string { return t.Ref.ID() }

// SetDefaults fills optional fields left empty by callers.
func (t *Task) SetDefaults(now time.Time) {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
}

// Validate checks field values.
func (t *Task) Validate() error {
	if err := validateTitle(t.Title); err != nil {
		return err
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, t.Priority)
	}
	if t.EstimatedMinutes != nil && *t.EstimatedMinutes < 0 {
		return ErrInvalidDuration
	}
	return nil
}

// IsOverdue reports whether an open task is past its due date.
func (t *Task) IsOverdue(now time.Time) bool {
	return !t.Completed && !t.Archived && t.DueDate != nil && t.DueDate.Before(now)
}

// TaskPatch carries the fields of a partial task update. Nil fields are left
// untouched.
type TaskPatch struct {
	Title            *string
	Description      *string
	Completed        *bool
	Priority         *Priority
	Category         *string
	Archived         *bool
	DueDate          **time.Time
	EstimatedMinutes **int
	GoalID           *string
	GoalIDs          *[]string
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil &&
		p.Priority == nil && p.Category == nil && p.Archived == nil &&
		p.DueDate == nil && p.EstimatedMinutes == nil && p.GoalID == nil && p.GoalIDs == nil
}

// Apply writes the patch into t and bumps UpdatedAt.
func (p TaskPatch) Apply(t *Task, now time.Time) {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Archived != nil {
		t.Archived = *p.Archived
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.EstimatedMinutes != nil {
		t.EstimatedMinutes = *p.EstimatedMinutes
	}
	if p.GoalID != nil {
		t.GoalID = *p.GoalID
	}
	if p.GoalIDs != nil {
		t.GoalIDs = append([]string(nil), (*p.GoalIDs)...)
	}
	t.UpdatedAt = now
}
