package model

import (
	"fmt"
	"strings"
	"time"
)

// Goal groups tasks toward a target.
type Goal struct {
	Ref Ref `json:"ref" yaml:"ref" toml:"ref"`

	Title       string     `json:"title" yaml:"title" toml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	TargetDate  *time.Time `json:"target_date,omitempty" yaml:"target_date,omitempty" toml:"target_date,omitempty"`
	Completed   bool       `json:"completed" yaml:"completed" toml:"completed"`
	Progress    int        `json:"progress" yaml:"progress" toml:"progress"`
	Category    string     `json:"category,omitempty" yaml:"category,omitempty" toml:"category,omitempty"`

	RelatedTasks []Ref `json:"related_tasks,omitempty" yaml:"related_tasks,omitempty" toml:"related_tasks,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at" toml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at" toml:"updated_at"`
}

// ID returns the live id.
func (g *Goal) ID() string { return g.Ref.ID() }

// SetDefaults fills timestamps left empty by callers.
func (g *Goal) SetDefaults(now time.Time) {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = g.CreatedAt
	}
}

// Validate checks field values.
func (g *Goal) Validate() error {
	if err := validateTitle(g.Title); err != nil {
		return err
	}
	if g.Progress < 0 || g.Progress > 100 {
		return fmt.Errorf("%w (got %d)", ErrInvalidProgress, g.Progress)
	}
	return nil
}

// SetProgress clamps progress to [0, 100]. Reaching 100 completes the goal
// whatever its previous state.
func (g *Goal) SetProgress(progress int, now time.Time) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	g.Progress = progress
	if progress == 100 {
		g.Completed = true
	}
	g.UpdatedAt = now
}

// RelatedTaskIDs returns the live ids of the related tasks.
func (g *Goal) RelatedTaskIDs() []string {
	ids := make([]string, 0, len(g.RelatedTasks))
	for _, r := range g.RelatedTasks {
		if id := r.ID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// GoalPatch carries the fields of a partial goal update.
type GoalPatch struct {
	Title        *string
	Description  *string
	TargetDate   **time.Time
	Completed    *bool
	Progress     *int
	Category     *string
	RelatedTasks *[]Ref
}

// Apply writes the patch into g and bumps UpdatedAt.
func (p GoalPatch) Apply(g *Goal, now time.Time) {
	if p.Title != nil {
		g.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		g.Description = *p.Description
	}
	if p.TargetDate != nil {
		g.TargetDate = *p.TargetDate
	}
	if p.Completed != nil {
		g.Completed = *p.Completed
	}
	if p.Category != nil {
		g.Category = *p.Category
	}
	if p.RelatedTasks != nil {
		g.RelatedTasks = append([]Ref(nil), (*p.RelatedTasks)...)
	}
	if p.Progress != nil {
		g.SetProgress(*p.Progress, now)
	}
	g.UpdatedAt = now
}
