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

const taskColumns = `local_id, remote_id, title, description, completed, priority,
	category, archived, due_date, estimated_minutes, goal_id, goal_ids,
	created_at, updated_at`

// TaskFilter configures GetTasks. Zero values match everything.
type TaskFilter struct {
	Completed *bool
	Archived  *bool
	Category  string
	Priority  model.Priority
	GoalID    string
	// Unsynced restricts results to tasks without a backend id.
	Unsynced bool
}

// AddTask inserts a task and sets task.Ref.LocalID. A RemoteID already on the
// ref (a task pulled from the backend) is stored with it.
func (db *DB) AddTask(ctx context.Context, task *model.Task) error {
	task.SetDefaults(db.now())
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	goalIDs, err := marshalList(task.GoalIDs)
	if err != nil {
		return err
	}

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO tasks (
		remote_id, title, description, completed, priority, category, archived,
		due_date, estimated_minutes, goal_id, goal_ids, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stringToNull(task.Ref.RemoteID),
		task.Title,
		task.Description,
		boolToInt(task.Completed),
		string(task.Priority),
		task.Category,
		boolToInt(task.Archived),
		timeToNullString(task.DueDate),
		intPtrToNull(task.EstimatedMinutes),
		task.GoalID,
		goalIDs,
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read task id: %w", err)
	}
	task.Ref = task.Ref.WithLocal(id)
	return nil
}

// UpdateTask writes every column of an existing task, keyed by local id.
func (db *DB) UpdateTask(ctx context.Context, task *model.Task) error {
	if !task.Ref.HasLocal() {
		return fmt.Errorf("update task: %w: no local id", ErrNotFound)
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	goalIDs, err := marshalList(task.GoalIDs)
	if err != nil {
		return err
	}

	res, err := db.conn.ExecContext(ctx, `
	UPDATE tasks SET
		remote_id = ?, title = ?, description = ?, completed = ?, priority = ?,
		category = ?, archived = ?, due_date = ?, estimated_minutes = ?,
		goal_id = ?, goal_ids = ?, updated_at = ?
	WHERE local_id = ?`,
		stringToNull(task.Ref.RemoteID),
		task.Title,
		task.Description,
		boolToInt(task.Completed),
		string(task.Priority),
		task.Category,
		boolToInt(task.Archived),
		timeToNullString(task.DueDate),
		intPtrToNull(task.EstimatedMinutes),
		task.GoalID,
		goalIDs,
		formatTime(task.UpdatedAt),
		task.Ref.LocalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", task.Ref.LocalID, err)
	}
	return expectOneRow(res, "task", task.Ref.LocalID)
}

// AssignTaskRemoteID links a local task to its backend id. After this the
// task is no longer locally new.
func (db *DB) AssignTaskRemoteID(ctx context.Context, localID int64, remoteID string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE tasks SET remote_id = ? WHERE local_id = ?`, remoteID, localID)
	if err != nil {
		return fmt.Errorf("failed to assign remote id to task %d: %w", localID, err)
	}
	return expectOneRow(res, "task", localID)
}

// DeleteTask removes a task. Returns nil if the task doesn't exist.
func (db *DB) DeleteTask(ctx context.Context, localID int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("failed to delete task %d: %w", localID, err)
	}
	return nil
}

// GetTask retrieves a task by local id.
func (db *DB) GetTask(ctx context.Context, localID int64) (*model.Task, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE local_id = ?`, localID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", localID, ErrNotFound)
	}
	return task, err
}

// GetTaskByRemoteID retrieves a task by backend id.
func (db *DB) GetTaskByRemoteID(ctx context.Context, remoteID string) (*model.Task, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE remote_id = ?`, remoteID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", remoteID, ErrNotFound)
	}
	return task, err
}

// FindTask resolves a live id: a backend id first, then a decimal local id.
func (db *DB) FindTask(ctx context.Context, id string) (*model.Task, error) {
	task, err := db.GetTaskByRemoteID(ctx, id)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return task, err
	}
	if n, perr := strconv.ParseInt(id, 10, 64); perr == nil {
		return db.GetTask(ctx, n)
	}
	return nil, err
}

// GetTasks lists tasks matching filter, newest first.
func (db *DB) GetTasks(ctx context.Context, filter TaskFilter) ([]*model.Task, error) {
	var conditions []string
	var args []any

	if filter.Completed != nil {
		conditions = append(conditions, "completed = ?")
		args = append(args, boolToInt(*filter.Completed))
	}
	if filter.Archived != nil {
		conditions = append(conditions, "archived = ?")
		args = append(args, boolToInt(*filter.Archived))
	}
	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Priority != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.GoalID != "" {
		conditions = append(conditions, "(goal_id = ? OR EXISTS (SELECT 1 FROM json_each(goal_ids) WHERE json_each.value = ?))")
		args = append(args, filter.GoalID, filter.GoalID)
	}
	if filter.Unsynced {
		conditions = append(conditions, "remote_id IS NULL")
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, local_id DESC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		task             model.Task
		localID          int64
		remoteID         sql.NullString
		priority         string
		completed        int
		archived         int
		dueDate          sql.NullString
		estimatedMinutes sql.NullInt64
		goalIDs          string
		createdAt        string
		updatedAt        string
	)

	err := row.Scan(
		&localID,
		&remoteID,
		&task.Title,
		&task.Description,
		&completed,
		&priority,
		&task.Category,
		&archived,
		&dueDate,
		&estimatedMinutes,
		&task.GoalID,
		&goalIDs,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	task.Ref = model.NewRef(localID, remoteID.String)
	task.Priority = model.Priority(priority)
	task.Completed = completed != 0
	task.Archived = archived != 0
	task.DueDate = nullStringToTime(dueDate)
	task.EstimatedMinutes = nullToIntPtr(estimatedMinutes)
	task.CreatedAt = parseTime(createdAt)
	task.UpdatedAt = parseTime(updatedAt)
	if err := unmarshalList(goalIDs, &task.GoalIDs); err != nil {
		return nil, err
	}

	return &task, nil
}

func expectOneRow(res sql.Result, kind string, localID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, localID, ErrNotFound)
	}
	return nil
}
