package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MSghais/focus-afk-sub001/internal/model"
)

const goalColumns = `local_id, remote_id, title, description, target_date, completed,
	progress, category, related_tasks, created_at, updated_at`

// GoalFilter configures GetGoals.
type GoalFilter struct {
	Completed *bool
	Category  string
	Unsynced  bool
}

// AddGoal inserts a goal and sets goal.Ref.LocalID.
func (db *DB) AddGoal(ctx context.Context, goal *model.Goal) error {
	goal.SetDefaults(db.now())
	if err := goal.Validate(); err != nil {
		return fmt.Errorf("invalid goal: %w", err)
	}

	related, err := marshalList(goal.RelatedTasks)
	if err != nil {
		return err
	}

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO goals (
		remote_id, title, description, target_date, completed, progress,
		category, related_tasks, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stringToNull(goal.Ref.RemoteID),
		goal.Title,
		goal.Description,
		timeToNullString(goal.TargetDate),
		boolToInt(goal.Completed),
		goal.Progress,
		goal.Category,
		related,
		formatTime(goal.CreatedAt),
		formatTime(goal.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert goal: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read goal id: %w", err)
	}
	goal.Ref = goal.Ref.WithLocal(id)
	return nil
}

// UpdateGoal writes every column of an existing goal.
func (db *DB) UpdateGoal(ctx context.Context, goal *model.Goal) error {
	if !goal.Ref.HasLocal() {
		return fmt.Errorf("update goal: %w: no local id", ErrNotFound)
	}
	if err := goal.Validate(); err != nil {
		return fmt.Errorf("invalid goal: %w", err)
	}

	related, err := marshalList(goal.RelatedTasks)
	if err != nil {
		return err
	}

	res, err := db.conn.ExecContext(ctx, `
	UPDATE goals SET
		remote_id = ?, title = ?, description = ?, target_date = ?, completed = ?,
		progress = ?, category = ?, related_tasks = ?, updated_at = ?
	WHERE local_id = ?`,
		stringToNull(goal.Ref.RemoteID),
		goal.Title,
		goal.Description,
		timeToNullString(goal.TargetDate),
		boolToInt(goal.Completed),
		goal.Progress,
		goal.Category,
		related,
		formatTime(goal.UpdatedAt),
		goal.Ref.LocalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update goal %d: %w", goal.Ref.LocalID, err)
	}
	return expectOneRow(res, "goal", goal.Ref.LocalID)
}

// AssignGoalRemoteID links a local goal to its backend id.
func (db *DB) AssignGoalRemoteID(ctx context.Context, localID int64, remoteID string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE goals SET remote_id = ? WHERE local_id = ?`, remoteID, localID)
	if err != nil {
		return fmt.Errorf("failed to assign remote id to goal %d: %w", localID, err)
	}
	return expectOneRow(res, "goal", localID)
}

// DeleteGoal removes a goal. Returns nil if the goal doesn't exist.
func (db *DB) DeleteGoal(ctx context.Context, localID int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM goals WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("failed to delete goal %d: %w", localID, err)
	}
	return nil
}

// GetGoal retrieves a goal by local id.
func (db *DB) GetGoal(ctx context.Context, localID int64) (*model.Goal, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE local_id = ?`, localID)
	goal, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("goal %d: %w", localID, ErrNotFound)
	}
	return goal, err
}

// GetGoalByRemoteID retrieves a goal by backend id.
func (db *DB) GetGoalByRemoteID(ctx context.Context, remoteID string) (*model.Goal, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE remote_id = ?`, remoteID)
	goal, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("goal %s: %w", remoteID, ErrNotFound)
	}
	return goal, err
}

// FindGoal resolves a live id: a backend id first, then a decimal local id.
func (db *DB) FindGoal(ctx context.Context, id string) (*model.Goal, error) {
	goal, err := db.GetGoalByRemoteID(ctx, id)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return goal, err
	}
	if n, perr := strconv.ParseInt(id, 10, 64); perr == nil {
		return db.GetGoal(ctx, n)
	}
	return nil, err
}

// GetGoals lists goals matching filter, newest first.
func (db *DB) GetGoals(ctx context.Context, filter GoalFilter) ([]*model.Goal, error) {
	var conditions []string
	var args []any

	if filter.Completed != nil {
		conditions = append(conditions, "completed = ?")
		args = append(args, boolToInt(*filter.Completed))
	}
	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Unsynced {
		conditions = append(conditions, "remote_id IS NULL")
	}

	query := `SELECT ` + goalColumns + ` FROM goals`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, local_id DESC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []*model.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating goals: %w", err)
	}
	return goals, nil
}

func scanGoal(row rowScanner) (*model.Goal, error) {
	var (
		goal       model.Goal
		localID    int64
		remoteID   sql.NullString
		targetDate sql.NullString
		completed  int
		related    string
		createdAt  string
		updatedAt  string
	)

	err := row.Scan(
		&localID,
		&remoteID,
		&goal.Title,
		&goal.Description,
		&targetDate,
		&completed,
		&goal.Progress,
		&goal.Category,
		&related,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan goal: %w", err)
	}

	goal.Ref = model.NewRef(localID, remoteID.String)
	goal.TargetDate = nullStringToTime(targetDate)
	goal.Completed = completed != 0
	goal.CreatedAt = parseTime(createdAt)
	goal.UpdatedAt = parseTime(updatedAt)
	if err := unmarshalList(related, &goal.RelatedTasks); err != nil {
		return nil, err
	}

	return &goal, nil
}
