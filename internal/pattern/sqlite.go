package pattern

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tareqmamari/execintel/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS patterns (
	pattern_hash       TEXT PRIMARY KEY,
	normalized_message TEXT NOT NULL,
	signal_type        TEXT NOT NULL,
	first_seen         TEXT NOT NULL,
	last_seen          TEXT NOT NULL,
	occurrence_count   INTEGER NOT NULL DEFAULT 1,
	status             TEXT NOT NULL DEFAULT 'OPEN'
);
CREATE INDEX IF NOT EXISTS idx_patterns_status ON patterns(status);
CREATE INDEX IF NOT EXISTS idx_patterns_last_seen ON patterns(last_seen);
`

// SQLiteStore persists patterns in a local SQLite database. The upsert is a
// single statement, so concurrent analyses serialize on the database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates or opens the pattern database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize pattern schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertIncrement inserts or bumps the pattern row and returns it.
func (s *SQLiteStore) UpsertIncrement(ctx context.Context, hash string, fields UpsertFields) (*model.Pattern, error) {
	seenAt := fields.SeenAt.UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (pattern_hash, normalized_message, signal_type, first_seen, last_seen, occurrence_count, status)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(pattern_hash) DO UPDATE SET
			occurrence_count = occurrence_count + 1,
			last_seen = excluded.last_seen`,
		hash, fields.NormalizedMessage, string(fields.SignalType), seenAt, seenAt, string(model.PatternOpen))
	if err != nil {
		return nil, fmt.Errorf("upsert pattern %s: %w", hash, err)
	}
	return s.Get(ctx, hash)
}

// Get returns the pattern for a hash, or nil when unknown.
func (s *SQLiteStore) Get(ctx context.Context, hash string) (*model.Pattern, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT pattern_hash, normalized_message, signal_type, first_seen, last_seen, occurrence_count, status
		FROM patterns WHERE pattern_hash = ?`, hash)
	p, err := scanPattern(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// List returns patterns filtered by status, most recently seen first.
func (s *SQLiteStore) List(ctx context.Context, status model.PatternStatus, limit int) ([]*model.Pattern, error) {
	query := `
		SELECT pattern_hash, normalized_message, signal_type, first_seen, last_seen, occurrence_count, status
		FROM patterns`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY last_seen DESC, pattern_hash ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []*model.Pattern
	for rows.Next() {
		p, err := scanPattern(rows.Scan)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// SetStatus moves a pattern through its triage lifecycle.
func (s *SQLiteStore) SetStatus(ctx context.Context, hash string, status model.PatternStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE patterns SET status = ? WHERE pattern_hash = ?`, string(status), hash)
	if err != nil {
		return fmt.Errorf("set pattern status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("pattern %s not found", hash)
	}
	return nil
}

func scanPattern(scan func(...interface{}) error) (*model.Pattern, error) {
	var (
		p                   model.Pattern
		signalType, status  string
		firstSeen, lastSeen string
	)
	if err := scan(&p.PatternHash, &p.NormalizedMessage, &signalType, &firstSeen, &lastSeen, &p.OccurrenceCount, &status); err != nil {
		return nil, err
	}
	p.SignalType = model.SignalType(signalType)
	p.Status = model.PatternStatus(status)

	var err error
	if p.FirstSeen, err = time.Parse(time.RFC3339Nano, firstSeen); err != nil {
		return nil, fmt.Errorf("parse first_seen: %w", err)
	}
	if p.LastSeen, err = time.Parse(time.RFC3339Nano, lastSeen); err != nil {
		return nil, fmt.Errorf("parse last_seen: %w", err)
	}
	return &p, nil
}
