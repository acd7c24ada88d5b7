package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// SessionType is the kind of timer that produced a session.
type SessionType string

const (
	SessionFocus SessionType = "focus"
	SessionBreak SessionType = "break"
	SessionDeep  SessionType = "deep"
)

// IsValid reports whether t is a known session type.
func (t SessionType) IsValid() bool {
	switch t {
	case SessionFocus, SessionBreak, SessionDeep:
		return true
	}
	return false
}

// ParseSessionType accepts the type names case-insensitively.
func ParseSessionType(s string) (SessionType, error) {
	t := SessionType(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return SessionFocus, nil
	}
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

// TimerSession is one run of the focus/break timer.
//
// Unlike tasks and goals, sessions are created locally first and may also be
// created on the backend by another device, so the local id and the backend
// id are both retained. SyncedToBackend is true exactly when Ref.RemoteID is
// set.
type TimerSession struct {
	Ref Ref `json:"ref" yaml:"ref" toml:"ref"`

	Type   SessionType `json:"type" yaml:"type" toml:"type"`
	TaskID string      `json:"task_id,omitempty" yaml:"task_id,omitempty" toml:"task_id,omitempty"`
	GoalID string      `json:"goal_id,omitempty" yaml:"goal_id,omitempty" toml:"goal_id,omitempty"`

	StartTime time.Time  `json:"start_time" yaml:"start_time" toml:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" yaml:"end_time,omitempty" toml:"end_time,omitempty"`
	// Duration is in seconds.
	Duration  int  `json:"duration" yaml:"duration" toml:"duration"`
	Completed bool `json:"completed" yaml:"completed" toml:"completed"`

	Notes      string   `json:"notes,omitempty" yaml:"notes,omitempty" toml:"notes,omitempty"`
	Activities []string `json:"activities,omitempty" yaml:"activities,omitempty" toml:"activities,omitempty"`

	SyncedToBackend bool `json:"synced_to_backend" yaml:"synced_to_backend" toml:"synced_to_backend"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at" toml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at" toml:"updated_at"`
}

// ID returns the live id.
func (s *TimerSession) ID() string { return s.Ref.ID() }

// BackendID returns the backend id, empty until the session is synced.
func (s *TimerSession) BackendID() string { return s.Ref.RemoteID }

// MarkSynced links the session to its backend record.
func (s *TimerSession) MarkSynced(backendID string) {
	s.Ref = s.Ref.WithRemote(backendID)
	s.SyncedToBackend = backendID != ""
}

// LastModified is the timestamp used for last-writer-wins comparisons.
func (s *TimerSession) LastModified() time.Time {
	if !s.UpdatedAt.IsZero() {
		return s.UpdatedAt
	}
	return s.CreatedAt
}

// Minutes returns the duration rounded down to whole minutes.
func (s *TimerSession) Minutes() int { return s.Duration / 60 }

// Stop closes the session at end.
func (s *TimerSession) Stop(end time.Time, completed bool) {
	s.EndTime = &end
	d := int(end.Sub(s.StartTime).Seconds())
	if d < 0 {
		d = 0
	}
	s.Duration = d
	s.Completed = completed
	s.UpdatedAt = end
}

// Validate checks field values.
func (s *TimerSession) Validate() error {
	if !s.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, s.Type)
	}
	if s.StartTime.IsZero() {
		return fmt.Errorf("start time is required")
	}
	if s.Duration < 0 {
		return ErrInvalidDuration
	}
	return nil
}

// CopyMutableFrom overwrites the fields a remote copy is allowed to change.
// Identity and sync flags are left alone.
func (s *TimerSession) CopyMutableFrom(other *TimerSession) {
	s.TaskID = other.TaskID
	s.GoalID = other.GoalID
	s.Type = other.Type
	s.StartTime = other.StartTime
	s.EndTime = cloneTime(other.EndTime)
	s.Duration = other.Duration
	s.Completed = other.Completed
	s.Notes = other.Notes
	s.Activities = slices.Clone(other.Activities)
	s.UpdatedAt = other.LastModified()
}

// Clone returns a copy that shares no memory with s.
func (s *TimerSession) Clone() *TimerSession {
	c := *s
	c.EndTime = cloneTime(s.EndTime)
	c.Activities = slices.Clone(s.Activities)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
