package localdb

import (
	"context"
	"fmt"
	"time"

	"github.com/MSghais/focus-afk-sub001/internal/model"
)

// TaskStats summarizes the task collection.
type TaskStats struct {
	Total      int                    `json:"total"`
	Completed  int                    `json:"completed"`
	Pending    int                    `json:"pending"`
	Archived   int                    `json:"archived"`
	Overdue    int                    `json:"overdue"`
	ByPriority map[model.Priority]int `json:"by_priority"`
}

// DayStats is one local calendar day of sessions.
type DayStats struct {
	Date     string `json:"date"` // YYYY-MM-DD in the local time zone
	Sessions int    `json:"sessions"`
	Minutes  int    `json:"minutes"`
}

// SessionStats aggregates sessions of one type over a window of days.
type SessionStats struct {
	TotalSessions int `json:"total_sessions"`
	TotalMinutes  int `json:"total_minutes"`
	// AverageSessionLength is in minutes.
	AverageSessionLength float64    `json:"average_session_length"`
	SessionsByDay        []DayStats `json:"sessions_by_day"`
}

// GetTaskStats counts tasks by state and priority.
func (db *DB) GetTaskStats(ctx context.Context) (TaskStats, error) {
	tasks, err := db.GetTasks(ctx, TaskFilter{})
	if err != nil {
		return TaskStats{}, err
	}

	now := db.now()
	stats := TaskStats{ByPriority: make(map[model.Priority]int)}
	for _, t := range tasks {
		stats.Total++
		switch {
		case t.Archived:
			stats.Archived++
		case t.Completed:
			stats.Completed++
		default:
			stats.Pending++
		}
		if t.IsOverdue(now) {
			stats.Overdue++
		}
		stats.ByPriority[t.Priority]++
	}
	return stats, nil
}

// GetFocusStats aggregates completed focus sessions of the last days.
func (db *DB) GetFocusStats(ctx context.Context, days int) (SessionStats, error) {
	return db.sessionStats(ctx, model.SessionFocus, days)
}

// GetBreakStats aggregates completed break sessions of the last days.
func (db *DB) GetBreakStats(ctx context.Context, days int) (SessionStats, error) {
	return db.sessionStats(ctx, model.SessionBreak, days)
}

// GetDeepFocusStats aggregates completed deep-focus sessions of the last days.
func (db *DB) GetDeepFocusStats(ctx context.Context, days int) (SessionStats, error) {
	return db.sessionStats(ctx, model.SessionDeep, days)
}

// sessionStats groups sessions by local calendar day. The window covers today
// and the days-1 days before it; every day in the window is reported, empty
// or not, oldest first.
func (db *DB) sessionStats(ctx context.Context, typ model.SessionType, days int) (SessionStats, error) {
	if days <= 0 {
		return SessionStats{}, fmt.Errorf("days must be positive (got %d)", days)
	}

	now := db.now().In(time.Local)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	start := today.AddDate(0, 0, -(days - 1))

	sessions, err := db.GetSessions(ctx, SessionFilter{Type: typ, Since: start})
	if err != nil {
		return SessionStats{}, err
	}

	byDay := make(map[string]*DayStats, days)
	order := make([]string, 0, days)
	for d := 0; d < days; d++ {
		key := start.AddDate(0, 0, d).Format("2006-01-02")
		byDay[key] = &DayStats{Date: key}
		order = append(order, key)
	}

	var stats SessionStats
	for _, s := range sessions {
		if !s.Completed {
			continue
		}
		key := s.StartTime.In(time.Local).Format("2006-01-02")
		day, ok := byDay[key]
		if !ok {
			continue
		}
		minutes := s.Minutes()
		day.Sessions++
		day.Minutes += minutes
		stats.TotalSessions++
		stats.TotalMinutes += minutes
	}

	if stats.TotalSessions > 0 {
		stats.AverageSessionLength = float64(stats.TotalMinutes) / float64(stats.TotalSessions)
	}
	stats.SessionsByDay = make([]DayStats, 0, len(order))
	for _, key := range order {
		stats.SessionsByDay = append(stats.SessionsByDay, *byDay[key])
	}
	return stats, nil
}

// Counts reports the number of rows per collection.
type Counts struct {
	Tasks          int `json:"tasks"`
	Goals          int `json:"goals"`
	Sessions       int `json:"sessions"`
	UnsyncedTasks  int `json:"unsynced_tasks"`
	UnsyncedGoals  int `json:"unsynced_goals"`
	UnsyncedTimers int `json:"unsynced_sessions"`
	PendingOutbox  int `json:"pending_outbox"`
	DeadOutbox     int `json:"dead_outbox"`
}

// GetCounts returns collection sizes for status displays.
func (db *DB) GetCounts(ctx context.Context) (Counts, error) {
	var c Counts
	queries := []struct {
		dst   *int
		query string
	}{
		{&c.Tasks, `SELECT COUNT(*) FROM tasks`},
		{&c.Goals, `SELECT COUNT(*) FROM goals`},
		{&c.Sessions, `SELECT COUNT(*) FROM timer_sessions`},
		{&c.UnsyncedTasks, `SELECT COUNT(*) FROM tasks WHERE remote_id IS NULL`},
		{&c.UnsyncedGoals, `SELECT COUNT(*) FROM goals WHERE remote_id IS NULL`},
		{&c.UnsyncedTimers, `SELECT COUNT(*) FROM timer_sessions WHERE synced_to_backend = 0`},
		{&c.PendingOutbox, `SELECT COUNT(*) FROM outbox WHERE status IN ('pending', 'in_flight')`},
		{&c.DeadOutbox, `SELECT COUNT(*) FROM outbox WHERE status = 'dead'`},
	}
	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return Counts{}, fmt.Errorf("failed to count rows: %w", err)
		}
	}
	return c, nil
}
