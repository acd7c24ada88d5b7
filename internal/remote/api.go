package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// CreateTask creates a task and returns the backend copy with its id.
func (c *Client) CreateTask(ctx context.Context, task TaskDTO) (*TaskDTO, error) {
	var out TaskDTO
	if err := c.do(ctx, http.MethodPost, "/tasks", task, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("create task: backend returned no id")
	}
	return &out, nil
}

// UpdateTask applies patch to the task with the given backend id. patch is
// marshalled as-is, so callers send only the fields they changed.
func (c *Client) UpdateTask(ctx context.Context, id string, patch any) error {
	return c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id), patch, nil)
}

// DeleteTask deletes a task by backend id.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

// GetTasks lists every task of the signed-in user.
func (c *Client) GetTasks(ctx context.Context) ([]TaskDTO, error) {
	var out []TaskDTO
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToggleTaskComplete flips completion on the backend and returns the
// resulting value.
func (c *Client) ToggleTaskComplete(ctx context.Context, id string) (bool, error) {
	var out TaskDTO
	if err := c.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id)+"/toggle", nil, &out); err != nil {
		return false, err
	}
	return out.Completed, nil
}

// CreateGoal creates a goal and returns the backend copy with its id.
func (c *Client) CreateGoal(ctx context.Context, goal GoalDTO) (*GoalDTO, error) {
	var out GoalDTO
	if err := c.do(ctx, http.MethodPost, "/goals", goal, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("create goal: backend returned no id")
	}
	return &out, nil
}

// UpdateGoal applies patch to a goal.
func (c *Client) UpdateGoal(ctx context.Context, id string, patch any) error {
	return c.do(ctx, http.MethodPut, "/goals/"+url.PathEscape(id), patch, nil)
}

type progressPatch struct {
	Progress int `json:"progress"`
}

// UpdateGoalProgress sends a progress-only patch so concurrent edits to
// other goal fields are not overwritten.
func (c *Client) UpdateGoalProgress(ctx context.Context, id string, progress int) error {
	return c.do(ctx, http.MethodPatch, "/goals/"+url.PathEscape(id)+"/progress", progressPatch{Progress: progress}, nil)
}

// DeleteGoal deletes a goal by backend id.
func (c *Client) DeleteGoal(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/goals/"+url.PathEscape(id), nil, nil)
}

// GetGoals lists every goal of the signed-in user.
func (c *Client) GetGoals(ctx context.Context) ([]GoalDTO, error) {
	var out []GoalDTO
	if err := c.do(ctx, http.MethodGet, "/goals", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTimerSession creates a session and returns the backend id.
func (c *Client) CreateTimerSession(ctx context.Context, session TimerSessionDTO) (string, error) {
	var out TimerSessionDTO
	if err := c.do(ctx, http.MethodPost, "/timer-sessions", session, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create timer session: backend returned no id")
	}
	return out.ID, nil
}

// GetTimerSessions lists every session of the signed-in user.
func (c *Client) GetTimerSessions(ctx context.Context) ([]TimerSessionDTO, error) {
	var out []TimerSessionDTO
	if err := c.do(ctx, http.MethodGet, "/timer-sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateTimerSession applies patch to a session by backend id.
func (c *Client) UpdateTimerSession(ctx context.Context, backendID string, patch any) error {
	return c.do(ctx, http.MethodPut, "/timer-sessions/"+url.PathEscape(backendID), patch, nil)
}

// DeleteTimerSession deletes a session by backend id.
func (c *Client) DeleteTimerSession(ctx context.Context, backendID string) error {
	return c.do(ctx, http.MethodDelete, "/timer-sessions/"+url.PathEscape(backendID), nil, nil)
}

// GetFocusStats returns the backend's focus aggregate for the last days.
func (c *Client) GetFocusStats(ctx context.Context, days int) (*FocusStatsDTO, error) {
	var out FocusStatsDTO
	path := "/timer-sessions/stats/focus?days=" + strconv.Itoa(days)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
