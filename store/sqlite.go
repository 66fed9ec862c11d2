package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"
)

// SQLiteLogStore implements LogStore on a local SQLite database, for
// deployments that want the audit trail to outlive the score backend.
type SQLiteLogStore struct {
	db *sql.DB
}

// Ensure SQLiteLogStore implements LogStore
var _ LogStore = (*SQLiteLogStore)(nil)

// NewSQLiteLogStore opens (or creates) a log store at the given path
func NewSQLiteLogStore(path string) (*SQLiteLogStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &SQLiteLogStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteLogStore) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	log TEXT NOT NULL,
	field TEXT NOT NULL,
	record TEXT NOT NULL,
	written_at TIMESTAMP NOT NULL,
	PRIMARY KEY (log, field)
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources
func (s *SQLiteLogStore) Close() error {
	return s.db.Close()
}

// SetField upserts a record
func (s *SQLiteLogStore) SetField(ctx context.Context, log, field, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_records(log, field, record, written_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(log, field) DO UPDATE SET record = excluded.record, written_at = excluded.written_at`,
		log, field, value, time.Now().UTC(),
	)
	return err
}

// GetField reads a record
func (s *SQLiteLogStore) GetField(ctx context.Context, log, field string) (string, bool, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM audit_records WHERE log = ? AND field = ?`, log, field,
	).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return record, true, nil
}

// HasField reports whether a record exists
func (s *SQLiteLogStore) HasField(ctx context.Context, log, field string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM audit_records WHERE log = ? AND field = ?)`, log, field,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}
