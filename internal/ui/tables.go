package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/MSghais/focus-afk-sub001/internal/model"
)

func (r *Renderer) table(headers []string, rows [][]string) string {
	cell := r.r.NewStyle().Padding(0, 1)
	head := r.header.Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.muted).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return head
			}
			return cell
		}).
		Render()
}

// syncLabel shows where a record lives.
func (r *Renderer) syncLabel(ref model.Ref) string {
	switch ref.Kind {
	case model.RefSynced:
		return r.Pass("synced")
	case model.RefRemote:
		return r.Accent("remote")
	default:
		return r.Warn("local")
	}
}

func shortDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02")
}

// TaskTable lists tasks with their completion, priority, due date and sync state.
func (r *Renderer) TaskTable(tasks []*model.Task, now time.Time) string {
	if len(tasks) == 0 {
		return r.Muted("No tasks.")
	}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		done := " "
		if t.Completed {
			done = r.Pass("✓")
		}
		due := shortDate(t.DueDate)
		if t.IsOverdue(now) {
			due = r.Fail(due)
		}
		rows = append(rows, []string{
			t.ID(), done, r.priority(t.Priority), t.Title, due, r.syncLabel(t.Ref),
		})
	}
	return r.table([]string{"ID", "", "Priority", "Title", "Due", "Sync"}, rows)
}

func (r *Renderer) priority(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return r.Fail(string(p))
	case model.PriorityLow:
		return r.Muted(string(p))
	default:
		return string(p)
	}
}

// GoalTable lists goals with a progress bar.
func (r *Renderer) GoalTable(goals []*model.Goal) string {
	if len(goals) == 0 {
		return r.Muted("No goals.")
	}
	rows := make([][]string, 0, len(goals))
	for _, g := range goals {
		bar := fmt.Sprintf("%s %3d%%", ProgressBar(g.Progress, 10), g.Progress)
		if g.Completed {
			bar = r.Pass(bar)
		}
		rows = append(rows, []string{
			g.ID(), g.Title, bar, shortDate(g.TargetDate),
			strconv.Itoa(len(g.RelatedTasks)), r.syncLabel(g.Ref),
		})
	}
	return r.table([]string{"ID", "Title", "Progress", "Target", "Tasks", "Sync"}, rows)
}

// SessionTable lists timer sessions, newest first as given.
func (r *Renderer) SessionTable(sessions []*model.TimerSession) string {
	if len(sessions) == 0 {
		return r.Muted("No sessions.")
	}
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		state := r.Muted("abandoned")
		switch {
		case s.EndTime == nil:
			state = r.Accent("running")
		case s.Completed:
			state = r.Pass("completed")
		}
		synced := r.Warn("no")
		if s.SyncedToBackend {
			synced = r.Pass("yes")
		}
		rows = append(rows, []string{
			s.ID(), string(s.Type), s.StartTime.Local().Format("2006-01-02 15:04"),
			FormatDuration(time.Duration(s.Duration) * time.Second), state, synced,
		})
	}
	return r.table([]string{"ID", "Type", "Started", "Length", "State", "Synced"}, rows)
}

// KeyValues renders aligned "key: value" lines.
func (r *Renderer) KeyValues(pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		if n := lipgloss.Width(p[0]); n > width {
			width = n
		}
	}
	key := r.muted.Width(width + 1)
	var out string
	for i, p := range pairs {
		if i > 0 {
			out += "\n"
		}
		out += key.Render(p[0]+":") + " " + p[1]
	}
	return out
}
