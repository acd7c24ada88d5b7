package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MSghais/focus-afk-sub001/internal/model"
)

const sessionColumns = `local_id, backend_id, type, task_id, goal_id, start_time, end_time,
	duration, completed, notes, activities, synced_to_backend, created_at, updated_at`

// SessionFilter configures GetSessions.
type SessionFilter struct {
	Type model.SessionType
	// Since keeps sessions that started at or after this instant.
	Since time.Time
	// Unsynced keeps sessions with synced_to_backend = 0.
	Unsynced bool
	// Open keeps sessions that have not been stopped yet.
	Open bool
}

// AddSession inserts a timer session and sets session.Ref.LocalID.
func (db *DB) AddSession(ctx context.Context, session *model.TimerSession) error {
	now := db.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	activities, err := marshalList(session.Activities)
	if err != nil {
		return err
	}

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO timer_sessions (
		backend_id, type, task_id, goal_id, start_time, end_time, duration,
		completed, notes, activities, synced_to_backend, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stringToNull(session.Ref.RemoteID),
		string(session.Type),
		session.TaskID,
		session.GoalID,
		formatTime(session.StartTime),
		timeToNullString(session.EndTime),
		session.Duration,
		boolToInt(session.Completed),
		session.Notes,
		activities,
		boolToInt(session.Ref.RemoteID != ""),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read session id: %w", err)
	}
	session.Ref = session.Ref.WithLocal(id)
	session.SyncedToBackend = session.Ref.RemoteID != ""
	return nil
}

// UpdateSession writes every column of an existing session.
func (db *DB) UpdateSession(ctx context.Context, session *model.TimerSession) error {
	if !session.Ref.HasLocal() {
		return fmt.Errorf("update session: %w: no local id", ErrNotFound)
	}
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	activities, err := marshalList(session.Activities)
	if err != nil {
		return err
	}

	res, err := db.conn.ExecContext(ctx, `
	UPDATE timer_sessions SET
		backend_id = ?, type = ?, task_id = ?, goal_id = ?, start_time = ?,
		end_time = ?, duration = ?, completed = ?, notes = ?, activities = ?,
		synced_to_backend = ?, updated_at = ?
	WHERE local_id = ?`,
		stringToNull(session.Ref.RemoteID),
		string(session.Type),
		session.TaskID,
		session.GoalID,
		formatTime(session.StartTime),
		timeToNullString(session.EndTime),
		session.Duration,
		boolToInt(session.Completed),
		session.Notes,
		activities,
		boolToInt(session.SyncedToBackend),
		formatTime(session.UpdatedAt),
		session.Ref.LocalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %d: %w", session.Ref.LocalID, err)
	}
	return expectOneRow(res, "session", session.Ref.LocalID)
}

// MarkSessionSynced sets synced_to_backend and the backend id together.
func (db *DB) MarkSessionSynced(ctx context.Context, localID int64, backendID string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE timer_sessions SET synced_to_backend = 1, backend_id = ? WHERE local_id = ?`,
		backendID, localID)
	if err != nil {
		return fmt.Errorf("failed to mark session %d synced: %w", localID, err)
	}
	return expectOneRow(res, "session", localID)
}

// DeleteSession removes a session. Returns nil if it doesn't exist.
func (db *DB) DeleteSession(ctx context.Context, localID int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM timer_sessions WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("failed to delete session %d: %w", localID, err)
	}
	return nil
}

// GetSession retrieves a session by local id.
func (db *DB) GetSession(ctx context.Context, localID int64) (*model.TimerSession, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM timer_sessions WHERE local_id = ?`, localID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", localID, ErrNotFound)
	}
	return s, err
}

// GetSessionByBackendID retrieves a session by backend id.
func (db *DB) GetSessionByBackendID(ctx context.Context, backendID string) (*model.TimerSession, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM timer_sessions WHERE backend_id = ?`, backendID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", backendID, ErrNotFound)
	}
	return s, err
}

// FindSession resolves a live id: a backend id first, then a decimal local id.
func (db *DB) FindSession(ctx context.Context, id string) (*model.TimerSession, error) {
	s, err := db.GetSessionByBackendID(ctx, id)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return s, err
	}
	if n, perr := strconv.ParseInt(id, 10, 64); perr == nil {
		return db.GetSession(ctx, n)
	}
	return nil, err
}

// GetSessions lists sessions matching filter, most recent start first.
func (db *DB) GetSessions(ctx context.Context, filter SessionFilter) ([]*model.TimerSession, error) {
	var conditions []string
	var args []any

	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "start_time >= ?")
		args = append(args, formatTime(filter.Since))
	}
	if filter.Unsynced {
		conditions = append(conditions, "synced_to_backend = 0")
	}
	if filter.Open {
		conditions = append(conditions, "end_time IS NULL")
	}

	query := `SELECT ` + sessionColumns + ` FROM timer_sessions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY start_time DESC, local_id DESC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.TimerSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(row rowScanner) (*model.TimerSession, error) {
	var (
		s          model.TimerSession
		localID    int64
		backendID  sql.NullString
		typ        string
		startTime  string
		endTime    sql.NullString
		completed  int
		activities string
		synced     int
		createdAt  string
		updatedAt  string
	)

	err := row.Scan(
		&localID,
		&backendID,
		&typ,
		&s.TaskID,
		&s.GoalID,
		&startTime,
		&endTime,
		&s.Duration,
		&completed,
		&s.Notes,
		&activities,
		&synced,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	s.Ref = model.NewRef(localID, backendID.String)
	s.Type = model.SessionType(typ)
	s.StartTime = parseTime(startTime)
	s.EndTime = nullStringToTime(endTime)
	s.Completed = completed != 0
	s.SyncedToBackend = synced != 0
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	if err := unmarshalList(activities, &s.Activities); err != nil {
		return nil, err
	}

	return &s, nil
}
