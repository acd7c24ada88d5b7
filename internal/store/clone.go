package store

import (
	"time"

	"github.com/MSghais/focus-afk-sub001/internal/model"
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneTask(t *model.Task) *model.Task {
	c := *t
	c.DueDate = cloneTime(t.DueDate)
	if t.EstimatedMinutes != nil {
		v := *t.EstimatedMinutes
		c.EstimatedMinutes = &v
	}
	c.GoalIDs = append([]string(nil), t.GoalIDs...)
	return &c
}

func cloneGoal(g *model.Goal) *model.Goal {
	c := *g
	c.TargetDate = cloneTime(g.TargetDate)
	c.RelatedTasks = append([]model.Ref(nil), g.RelatedTasks...)
	return &c
}

func cloneSession(s *model.TimerSession) *model.TimerSession {
	c := *s
	c.EndTime = cloneTime(s.EndTime)
	c.Activities = append([]string(nil), s.Activities...)
	return &c
}

func cloneTimer(a *ActiveTimer) *ActiveTimer {
	if a == nil {
		return nil
	}
	return &ActiveTimer{Session: cloneSession(a.Session), Planned: a.Planned}
}

func cloneAll[T any](items []*T, clone func(*T) *T) []*T {
	out := make([]*T, len(items))
	for i, item := range items {
		out[i] = clone(item)
	}
	return out
}

func cloneTasks(ts []*model.Task) []*model.Task { return cloneAll(ts, cloneTask) }

func cloneGoals(gs []*model.Goal) []*model.Goal { return cloneAll(gs, cloneGoal) }

func cloneSessions(ss []*model.TimerSession) []*model.TimerSession {
	return cloneAll(ss, cloneSession)
}
