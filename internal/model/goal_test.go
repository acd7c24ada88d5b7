package model

import (
	"testing"
	"time"
)

func TestGoal_SetProgressCompletes(t *testing.T) {
	now := time.Now()

	for _, start := range []bool{false, true} {
		g := &Goal{Title: "Ship", Completed: start, Progress: 40}
		g.SetProgress(100, now)
		if !g.Completed {
			t.Errorf("Completed = false after progress 100 (start completed=%v)", start)
		}
	}
}

func TestGoal_SetProgressClamps(t *testing.T) {
	now := time.Now()
	g := &Goal{Title: "Ship"}

	g.SetProgress(150, now)
	if g.Progress != 100 || !g.Completed {
		t.Errorf("progress = %d completed = %v, want 100 true", g.Progress, g.Completed)
	}

	g.SetProgress(-3, now)
	if g.Progress != 0 {
		t.Errorf("progress = %d, want 0", g.Progress)
	}
}

func TestGoalPatch_ProgressWinsOverCompleted(t *testing.T) {
	now := time.Now()
	g := &Goal{Title: "Ship"}
	completed := false
	progress := 100

	GoalPatch{Completed: &completed, Progress: &progress}.Apply(g, now)
	if !g.Completed {
		t.Error("Completed = false, want true when progress reaches 100")
	}
}

func TestTimerSession_Stop(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := &TimerSession{Type: SessionFocus, StartTime: start}

	s.Stop(start.Add(25*time.Minute), true)

	if s.Duration != 1500 {
		t.Errorf("Duration = %d, want 1500", s.Duration)
	}
	if !s.Completed || s.EndTime == nil {
		t.Errorf("session not closed: %+v", s)
	}
	if s.Minutes() != 25 {
		t.Errorf("Minutes() = %d, want 25", s.Minutes())
	}
}
