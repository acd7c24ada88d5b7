package remote

import (
	"fmt"
	"strconv"
	"time"

	"github.com/MSghais/focus-afk-sub001/internal/model"
)

// TaskDTO is the backend's task shape.
type TaskDTO struct {
	ID               string   `json:"id,omitempty"`
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Completed        bool     `json:"completed"`
	Priority         string   `json:"priority,omitempty"`
	Category         string   `json:"category,omitempty"`
	Archived         bool     `json:"archived"`
	DueDate          *string  `json:"dueDate,omitempty"`
	EstimatedMinutes *int     `json:"estimatedMinutes,omitempty"`
	GoalID           string   `json:"goalId,omitempty"`
	GoalIDs          []string `json:"goalIds,omitempty"`
	CreatedAt        string   `json:"createdAt,omitempty"`
	UpdatedAt        string   `json:"updatedAt,omitempty"`
}

// GoalDTO is the backend's goal shape. Related tasks travel as string ids.
type GoalDTO struct {
	ID             string   `json:"id,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	TargetDate     *string  `json:"targetDate,omitempty"`
	Completed      bool     `json:"completed"`
	Progress       int      `json:"progress"`
	Category       string   `json:"category,omitempty"`
	RelatedTaskIDs []string `json:"relatedTaskIds"`
	CreatedAt      string   `json:"createdAt,omitempty"`
	UpdatedAt      string   `json:"updatedAt,omitempty"`
}

// TimerSessionDTO is the backend's timer session shape.
type TimerSessionDTO struct {
	ID         string   `json:"id,omitempty"`
	TaskID     string   `json:"taskId,omitempty"`
	GoalID     string   `json:"goalId,omitempty"`
	Type       string   `json:"type"`
	StartTime  string   `json:"startTime"`
	EndTime    *string  `json:"endTime,omitempty"`
	Duration   int      `json:"duration"`
	Completed  bool     `json:"completed"`
	Notes      string   `json:"notes,omitempty"`
	Activities []string `json:"activities,omitempty"`
	CreatedAt  string   `json:"createdAt,omitempty"`
	UpdatedAt  string   `json:"updatedAt,omitempty"`
}

// FocusStatsDTO is the backend's focus aggregate.
type FocusStatsDTO struct {
	TotalSessions        int          `json:"totalSessions"`
	TotalMinutes         int          `json:"totalMinutes"`
	AverageSessionLength float64      `json:"averageSessionLength"`
	SessionsByDay        []DayStatDTO `json:"sessionsByDay"`
}

// DayStatDTO is one day of FocusStatsDTO.
type DayStatDTO struct {
	Date     string `json:"date"`
	Sessions int    `json:"sessions"`
	Minutes  int    `json:"minutes"`
}

// TaskToDTO converts a task for create/update requests. The id is omitted.
func TaskToDTO(t *model.Task) TaskDTO {
	return TaskDTO{
		Title:            t.Title,
		Description:      t.Description,
		Completed:        t.Completed,
		Priority:         string(t.Priority),
		Category:         t.Category,
		Archived:         t.Archived,
		DueDate:          formatOptional(t.DueDate),
		EstimatedMinutes: t.EstimatedMinutes,
		GoalID:           t.GoalID,
		GoalIDs:          t.GoalIDs,
		CreatedAt:        formatWire(t.CreatedAt),
		UpdatedAt:        formatWire(t.UpdatedAt),
	}
}

// ToTask converts a backend task. The result carries a remote-only ref.
func (d TaskDTO) ToTask() (*model.Task, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("task without id")
	}
	priority, err := model.ParsePriority(d.Priority)
	if err != nil {
		priority = model.PriorityMedium
	}
	due, err := parseOptional(d.DueDate)
	if err != nil {
		return nil, fmt.Errorf("task %s: dueDate: %w", d.ID, err)
	}
	created, updated, err := parseStamps(d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", d.ID, err)
	}
	return &model.Task{
		Ref:              model.RemoteRef(d.ID),
		Title:            d.Title,
		Description:      d.Description,
		Completed:        d.Completed,
		Priority:         priority,
		Category:         d.Category,
		Archived:         d.Archived,
		DueDate:          due,
		EstimatedMinutes: d.EstimatedMinutes,
		GoalID:           d.GoalID,
		GoalIDs:          d.GoalIDs,
		CreatedAt:        created,
		UpdatedAt:        updated,
	}, nil
}

// GoalToDTO converts a goal for create/update requests. Related task refs
// become their live ids.
func GoalToDTO(g *model.Goal) GoalDTO {
	related := g.RelatedTaskIDs()
	if related == nil {
		related = []string{}
	}
	return GoalDTO{
		Title:          g.Title,
		Description:    g.Description,
		TargetDate:     formatOptional(g.TargetDate),
		Completed:      g.Completed,
		Progress:       g.Progress,
		Category:       g.Category,
		RelatedTaskIDs: related,
		CreatedAt:      formatWire(g.CreatedAt),
		UpdatedAt:      formatWire(g.UpdatedAt),
	}
}

// ToGoal converts a backend goal. resolve maps a related task id to a ref;
// nil treats decimal ids as local and everything else as remote.
func (d GoalDTO) ToGoal(resolve func(id string) model.Ref) (*model.Goal, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("goal without id")
	}
	if resolve == nil {
		resolve = model.ParseLooseID
	}
	target, err := parseOptional(d.TargetDate)
	if err != nil {
		return nil, fmt.Errorf("goal %s: targetDate: %w", d.ID, err)
	}
	created, updated, err := parseStamps(d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("goal %s: %w", d.ID, err)
	}
	g := &model.Goal{
		Ref:         model.RemoteRef(d.ID),
		Title:       d.Title,
		Description: d.Description,
		TargetDate:  target,
		Completed:   d.Completed,
		Category:    d.Category,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
	g.SetProgress(d.Progress, updated)
	for _, id := range d.RelatedTaskIDs {
		if id == "" {
			continue
		}
		g.RelatedTasks = append(g.RelatedTasks, resolve(id))
	}
	return g, nil
}

// SessionToDTO builds the normalized create payload for a session.
func SessionToDTO(s *model.TimerSession) TimerSessionDTO {
	return TimerSessionDTO{
		TaskID:     s.TaskID,
		GoalID:     s.GoalID,
		Type:       string(s.Type),
		StartTime:  formatWire(s.StartTime),
		EndTime:    formatOptional(s.EndTime),
		Duration:   s.Duration,
		Completed:  s.Completed,
		Notes:      s.Notes,
		Activities: s.Activities,
		CreatedAt:  formatWire(s.CreatedAt),
		UpdatedAt:  formatWire(s.UpdatedAt),
	}
}

// ToSession converts a backend session. The result is marked synced and
// carries only the backend id.
func (d TimerSessionDTO) ToSession() (*model.TimerSession, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("timer session without id")
	}
	typ, err := model.ParseSessionType(d.Type)
	if err != nil {
		return nil, fmt.Errorf("timer session %s: %w", d.ID, err)
	}
	start, err := parseWire(d.StartTime)
	if err != nil {
		return nil, fmt.Errorf("timer session %s: startTime: %w", d.ID, err)
	}
	end, err := parseOptional(d.EndTime)
	if err != nil {
		return nil, fmt.Errorf("timer session %s: endTime: %w", d.ID, err)
	}
	created, updated, err := parseStamps(d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("timer session %s: %w", d.ID, err)
	}
	if created.IsZero() {
		created = start
	}
	s := &model.TimerSession{
		Ref:        model.RemoteRef(d.ID),
		Type:       typ,
		TaskID:     d.TaskID,
		GoalID:     d.GoalID,
		StartTime:  start,
		EndTime:    end,
		Duration:   d.Duration,
		Completed:  d.Completed,
		Notes:      d.Notes,
		Activities: d.Activities,
		CreatedAt:  created,
		UpdatedAt:  updated,
	}
	s.SyncedToBackend = true
	return s, nil
}

// wireLayouts are accepted on input; output always uses the first.
var wireLayouts = []string{
	"2006-01-02T15:04:05.000Z07:00",
	time.RFC3339Nano,
	"2006-01-02",
}

func formatWire(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(wireLayouts[0])
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatWire(*t)
	return &s
}

func parseWire(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range wireLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// epoch milliseconds
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func parseOptional(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseWire(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseStamps(created, updated string) (time.Time, time.Time, error) {
	c, err := parseWire(created)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("createdAt: %w", err)
	}
	u, err := parseWire(updated)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("updatedAt: %w", err)
	}
	if u.IsZero() {
		u = c
	}
	return c, u, nil
}
