package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Outbox entry statuses.
const (
	OutboxPending = "pending"
	// OutboxInFlight marks an entry a dispatcher is sending. The claim lapses
	// at next_attempt_at, after which the entry is due again.
	OutboxInFlight = "in_flight"
	OutboxDone     = "done"
	OutboxDead     = "dead"
)

// OutboxEntry is one queued remote mutation.
type OutboxEntry struct {
	ID       string
	Resource string
	Op       string
	LocalID  int64
	RemoteID string
	// Payload is the JSON body captured when the entry was enqueued.
	Payload       []byte
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	Status        string
	CreatedAt     time.Time
	// Seq orders delivery. It is assigned on insert.
	Seq int64
}

// OutboxFilter configures ListOutbox. Zero values match everything.
type OutboxFilter struct {
	Status   string
	Resource string
	LocalID  int64
	Op       string
}

const outboxColumns = `id, resource, op, local_id, remote_id, payload, attempts,
	next_attempt_at, last_error, status, created_at, seq`

// EnqueueOutbox appends an entry. ID must be set by the caller; Seq, Status
// and the timestamps are filled in when empty.
func (db *DB) EnqueueOutbox(ctx context.Context, entry *OutboxEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("outbox entry id is required")
	}
	now := db.now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.NextAttemptAt.IsZero() {
		entry.NextAttemptAt = entry.CreatedAt
	}
	if entry.Status == "" {
		entry.Status = OutboxPending
	}
	payload := string(entry.Payload)
	if payload == "" {
		payload = "{}"
	}

	row := db.conn.QueryRowContext(ctx, `
	INSERT INTO outbox (
		id, resource, op, local_id, remote_id, payload, attempts,
		next_attempt_at, last_error, status, created_at, seq
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		(SELECT COALESCE(MAX(seq), 0) + 1 FROM outbox))
	RETURNING seq`,
		entry.ID,
		entry.Resource,
		entry.Op,
		entry.LocalID,
		entry.RemoteID,
		payload,
		entry.Attempts,
		formatTime(entry.NextAttemptAt),
		entry.LastError,
		entry.Status,
		formatTime(entry.CreatedAt),
	)
	if err := row.Scan(&entry.Seq); err != nil {
		return fmt.Errorf("failed to enqueue outbox entry: %w", err)
	}
	return nil
}

// DueOutbox returns pending entries and lapsed in-flight claims whose next
// attempt is at or before now, in delivery order.
func (db *DB) DueOutbox(ctx context.Context, now time.Time, limit int) ([]*OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx, `
	SELECT `+outboxColumns+` FROM outbox
	WHERE status IN (?, ?) AND next_attempt_at <= ?
	ORDER BY seq
	LIMIT ?`, OutboxPending, OutboxInFlight, formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due outbox entries: %w", err)
	}
	return collectOutbox(rows)
}

// ListOutbox returns entries matching filter in delivery order.
func (db *DB) ListOutbox(ctx context.Context, filter OutboxFilter) ([]*OutboxEntry, error) {
	var conditions []string
	var args []any
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Resource != "" {
		conditions = append(conditions, "resource = ?")
		args = append(args, filter.Resource)
	}
	if filter.LocalID != 0 {
		conditions = append(conditions, "local_id = ?")
		args = append(args, filter.LocalID)
	}
	if filter.Op != "" {
		conditions = append(conditions, "op = ?")
		args = append(args, filter.Op)
	}

	query := `SELECT ` + outboxColumns + ` FROM outbox`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox: %w", err)
	}
	return collectOutbox(rows)
}

// PendingOutbox returns every pending entry for resource.
func (db *DB) PendingOutbox(ctx context.Context, resource string) ([]*OutboxEntry, error) {
	return db.ListOutbox(ctx, OutboxFilter{Status: OutboxPending, Resource: resource})
}

// PendingCreates returns the local ids of resource rows that still have a
// pending or in-flight create entry.
func (db *DB) PendingCreates(ctx context.Context, resource string) (map[int64]bool, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT local_id FROM outbox WHERE resource = ? AND op = 'create' AND status IN (?, ?)`,
		resource, OutboxPending, OutboxInFlight)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending creates: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan pending create: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// GetOutbox retrieves an entry by id.
func (db *DB) GetOutbox(ctx context.Context, id string) (*OutboxEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox entry: %w", err)
	}
	entries, err := collectOutbox(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("outbox entry %s: %w", id, ErrNotFound)
	}
	return entries[0], nil
}

// CompleteOutbox marks an entry done. An empty note means it was sent; the
// note of an entry completed without a send (superseded or cancelled) is
// kept in last_error.
func (db *DB) CompleteOutbox(ctx context.Context, id, note string) error {
	return db.setOutboxStatus(ctx, id, OutboxDone, note)
}

// KillOutbox marks an entry dead. Dead entries are never retried.
func (db *DB) KillOutbox(ctx context.Context, id, lastErr string) error {
	return db.setOutboxStatus(ctx, id, OutboxDead, lastErr)
}

func (db *DB) setOutboxStatus(ctx context.Context, id, status, note string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE outbox SET status = ?, last_error = ? WHERE id = ?`, status, note, id)
	if err != nil {
		return fmt.Errorf("failed to update outbox entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("outbox entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// RescheduleOutbox records a failed attempt and releases any claim on the
// entry.
func (db *DB) RescheduleOutbox(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	res, err := db.conn.ExecContext(ctx, `
	UPDATE outbox SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?
	WHERE id = ? AND status IN (?, ?)`,
		OutboxPending, attempts, formatTime(next), lastErr, id, OutboxPending, OutboxInFlight)
	if err != nil {
		return fmt.Errorf("failed to reschedule outbox entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("outbox entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClaimOutbox marks a due entry in flight until now+lease. It reports false
// when the entry is no longer due, for example because a sync push took
// over its create or another dispatcher claimed it first.
func (db *DB) ClaimOutbox(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
	UPDATE outbox SET status = ?, next_attempt_at = ?
	WHERE id = ? AND status IN (?, ?) AND next_attempt_at <= ?`,
		OutboxInFlight, formatTime(now.Add(lease)), id, OutboxPending, OutboxInFlight, formatTime(now))
	if err != nil {
		return false, fmt.Errorf("failed to claim outbox entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// TakeOverCreate completes the queued create entries of a record, due or
// backing off, so the caller can send the record itself. Lapsed claims are
// taken over too. It reports busy, and changes nothing, when a create for
// the record is in flight or has already been delivered.
func (db *DB) TakeOverCreate(ctx context.Context, resource string, localID int64, note string) (busy bool, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(db.now())
	var n int
	err = tx.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM outbox
	WHERE resource = ? AND local_id = ? AND op = 'create'
	  AND ((status = ? AND next_attempt_at > ?) OR (status = ? AND last_error = ''))`,
		resource, localID, OutboxInFlight, now, OutboxDone).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check queued creates: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	if _, err := tx.ExecContext(ctx, `
	UPDATE outbox SET status = ?, last_error = ?
	WHERE resource = ? AND local_id = ? AND op = 'create' AND status IN (?, ?)`,
		OutboxDone, note, resource, localID, OutboxPending, OutboxInFlight); err != nil {
		return false, fmt.Errorf("failed to take over queued creates: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return false, nil
}

// CancelOutbox completes every pending entry for a target without sending
// it. It returns the number of entries cancelled.
func (db *DB) CancelOutbox(ctx context.Context, resource string, localID int64, note string) (int, error) {
	res, err := db.conn.ExecContext(ctx, `
	UPDATE outbox SET status = ?, last_error = ?
	WHERE resource = ? AND local_id = ? AND status = ?`,
		OutboxDone, note, resource, localID, OutboxPending)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel outbox entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// CountOutbox counts entries with status; empty counts all.
func (db *DB) CountOutbox(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM outbox`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return n, nil
}

// PruneOutbox deletes delivered entries created before cutoff.
func (db *DB) PruneOutbox(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM outbox WHERE status = ? AND created_at < ?`, OutboxDone, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune outbox: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

func collectOutbox(rows *sql.Rows) ([]*OutboxEntry, error) {
	defer rows.Close()
	var entries []*OutboxEntry
	for rows.Next() {
		e, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox: %w", err)
	}
	return entries, nil
}

func scanOutbox(row rowScanner) (*OutboxEntry, error) {
	var (
		e         OutboxEntry
		payload   string
		nextAt    string
		createdAt string
	)
	err := row.Scan(
		&e.ID,
		&e.Resource,
		&e.Op,
		&e.LocalID,
		&e.RemoteID,
		&payload,
		&e.Attempts,
		&nextAt,
		&e.LastError,
		&e.Status,
		&createdAt,
		&e.Seq,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
	}
	e.Payload = []byte(payload)
	e.NextAttemptAt = parseTime(nextAt)
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}
