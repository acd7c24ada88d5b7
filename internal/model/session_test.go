package model

import (
	"testing"
	"time"
)

func TestTimerSession_CopyMutableFromSharesNothing(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(25 * time.Minute)
	remote := &TimerSession{
		Ref:        RemoteRef("b1"),
		Type:       SessionDeep,
		StartTime:  start,
		EndTime:    &end,
		Duration:   1500,
		Completed:  true,
		Notes:      "from phone",
		Activities: []string{"reading", "notes"},
		UpdatedAt:  end,
	}
	local := &TimerSession{Ref: SyncedRef(3, "b1"), Type: SessionFocus, Activities: []string{"old"}}

	local.CopyMutableFrom(remote)

	if local.Ref != SyncedRef(3, "b1") {
		t.Errorf("Ref = %v, identity must not change", local.Ref)
	}
	if len(local.Activities) != 2 || local.Activities[0] != "reading" {
		t.Errorf("Activities = %v, want the remote list", local.Activities)
	}
	if local.EndTime == nil || !local.EndTime.Equal(end) {
		t.Fatalf("EndTime = %v, want %v", local.EndTime, end)
	}

	remote.Activities[0] = "changed"
	*remote.EndTime = end.Add(time.Hour)
	if local.Activities[0] != "reading" {
		t.Error("Activities shares its backing array with the source")
	}
	if !local.EndTime.Equal(end) {
		t.Error("EndTime points at the source's time")
	}
}

func TestTimerSession_Clone(t *testing.T) {
	end := time.Date(2026, 3, 2, 9, 25, 0, 0, time.UTC)
	s := &TimerSession{Ref: LocalRef(1), EndTime: &end, Activities: []string{"a"}}

	c := s.Clone()
	c.Activities[0] = "b"
	*c.EndTime = end.Add(time.Minute)
	c.Ref = c.Ref.WithRemote("r1")

	if s.Activities[0] != "a" || !s.EndTime.Equal(end) || s.Ref.HasRemote() {
		t.Errorf("original modified through clone: %+v", s)
	}
	if (&TimerSession{}).Clone().EndTime != nil {
		t.Error("Clone() of a running session has an end time")
	}
}
