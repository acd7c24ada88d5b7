// Package localdb is the on-device store for tasks, goals, timer sessions and
// user settings.
//
// The database is an embedded SQLite file opened in WAL mode so the CLI, the
// daemon and the dashboard can read while a sync writes. It owns the
// authoritative copy of the user's data while they are signed out or offline.
//
// Layout:
//   - tasks, goals, timer_sessions: one row per record, keyed by an
//     auto-increment local_id with a nullable unique remote_id
//   - user_settings: a single row (id = 1)
//   - outbox: remote mutations waiting for delivery
//
// All timestamps are stored as RFC 3339 strings in UTC.
package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// DB wraps the SQLite connection.
type DB struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
	now    func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for non-fatal warnings.
func WithLogger(logger *log.Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// WithClock overrides time.Now, used for stats windows and outbox scheduling.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		if now != nil {
			db.now = now
		}
	}
}

// Open creates or opens the database at path and initializes the schema.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	database, err := localdb.Open(filepath.Join(home, ".focus", "focus.db"))
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
func Open(path string, opts ...Option) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:   conn,
		path:   path,
		logger: log.New(os.Stderr, "[localdb] ", log.LstdFlags),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.conn.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := db.InitSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB { return db.conn }

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates tables and indexes. It is idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id TEXT UNIQUE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		priority TEXT NOT NULL DEFAULT 'medium',
		category TEXT NOT NULL DEFAULT '',
		archived INTEGER NOT NULL DEFAULT 0,
		due_date TEXT,
		estimated_minutes INTEGER,
		goal_id TEXT NOT NULL DEFAULT '',
		goal_ids TEXT NOT NULL DEFAULT '[]',  -- JSON array
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goals (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id TEXT UNIQUE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		target_date TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		progress INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		related_tasks TEXT NOT NULL DEFAULT '[]',  -- JSON array of refs
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS timer_sessions (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		backend_id TEXT UNIQUE,
		type TEXT NOT NULL,
		task_id TEXT NOT NULL DEFAULT '',
		goal_id TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		end_time TEXT,
		duration INTEGER NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		activities TEXT NOT NULL DEFAULT '[]',  -- JSON array
		synced_to_backend INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL,  -- JSON document
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outbox (
		id TEXT PRIMARY KEY,
		resource TEXT NOT NULL,
		op TEXT NOT NULL,
		local_id INTEGER NOT NULL DEFAULT 0,
		remote_id TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '{}',
		attempts INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TEXT NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed, archived);
	CREATE INDEX IF NOT EXISTS idx_tasks_title_created ON tasks(title, created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_start ON timer_sessions(type, start_time);
	CREATE INDEX IF NOT EXISTS idx_sessions_synced ON timer_sessions(synced_to_backend);
	CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox(status, next_attempt_at, seq);
	CREATE INDEX IF NOT EXISTS idx_outbox_target ON outbox(resource, local_id, status);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}
