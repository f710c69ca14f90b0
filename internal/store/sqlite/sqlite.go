package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/repaircall/internal/store"
)

// Schema creates the call log tables.
const Schema = `
CREATE TABLE IF NOT EXISTS call_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	attempt     TEXT NOT NULL UNIQUE,
	call_id     TEXT NOT NULL,
	role        TEXT NOT NULL,
	remote_name TEXT NOT NULL DEFAULT '',
	end_reason  TEXT NOT NULL DEFAULT '',
	failure     TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	started_at  DATETIME NOT NULL,
	ended_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_log_started ON call_log(started_at);
`

// SQLiteStore implements store.CallLogStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates missing tables.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveCall persists a finished call.
func (s *SQLiteStore) SaveCall(ctx context.Context, rec *store.CallRecord) error {
	if rec.Attempt == "" {
		return errors.New("call record without attempt")
	}
	query := `
		INSERT OR IGNORE INTO call_log
			(attempt, call_id, role, remote_name, end_reason, failure, duration_ms, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		rec.Attempt,
		rec.CallID,
		rec.Role,
		rec.RemoteName,
		rec.EndReason,
		rec.Failure,
		rec.Duration.Milliseconds(),
		rec.StartedAt.UTC(),
		rec.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Already recorded; report the existing row.
		err := s.db.QueryRowContext(ctx, `SELECT id FROM call_log WHERE attempt = ?`, rec.Attempt).Scan(&rec.ID)
		if err != nil {
			return fmt.Errorf("query existing call: %w", err)
		}
		return nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// ListCalls returns the newest calls first.
func (s *SQLiteStore) ListCalls(ctx context.Context, limit int, beforeID *int64) ([]*store.CallRecord, error) {
	var query string
	var args []interface{}

	if beforeID != nil {
		query = `
			SELECT id, attempt, call_id, role, remote_name, end_reason, failure, duration_ms, started_at, ended_at
			FROM call_log
			WHERE id < ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []interface{}{*beforeID, limit}
	} else {
		query = `
			SELECT id, attempt, call_id, role, remote_name, end_reason, failure, duration_ms, started_at, ended_at
			FROM call_log
			ORDER BY id DESC
			LIMIT ?
		`
		args = []interface{}{limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var calls []*store.CallRecord
	for rows.Next() {
		var rec store.CallRecord
		var durationMS int64
		if err := rows.Scan(
			&rec.ID,
			&rec.Attempt,
			&rec.CallID,
			&rec.Role,
			&rec.RemoteName,
			&rec.EndReason,
			&rec.Failure,
			&durationMS,
			&rec.StartedAt,
			&rec.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		calls = append(calls, &rec)
	}

	return calls, rows.Err()
}

// Ensure SQLiteStore implements store.CallLogStore
var _ store.CallLogStore = (*SQLiteStore)(nil)
