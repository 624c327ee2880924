// Package store persists finished session records in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lexiqai/session-assistant/internal/domain"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("session record not found")

// SQLiteStore is a session record store backed by a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  stopped_at TEXT NOT NULL,
  platform TEXT NOT NULL,
  language TEXT NOT NULL,
  duration_seconds REAL NOT NULL,
  overall_score REAL NOT NULL,
  partial INTEGER NOT NULL,
  transcription_count INTEGER NOT NULL,
  terms_count INTEGER NOT NULL,
  notes TEXT,
  report_json TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS sessions_started_at ON sessions(started_at)`); err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSession writes rec. A record with the same id is replaced.
func (s *SQLiteStore) SaveSession(ctx context.Context, rec domain.SessionRecord) error {
	report, err := json.Marshal(rec.PerformanceReport)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	const stmt = `
INSERT INTO sessions (id, started_at, stopped_at, platform, language, duration_seconds, overall_score, partial, transcription_count, terms_count, notes, report_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  started_at=excluded.started_at,
  stopped_at=excluded.stopped_at,
  platform=excluded.platform,
  language=excluded.language,
  duration_seconds=excluded.duration_seconds,
  overall_score=excluded.overall_score,
  partial=excluded.partial,
  transcription_count=excluded.transcription_count,
  terms_count=excluded.terms_count,
  notes=excluded.notes,
  report_json=excluded.report_json;
`
	_, err = s.db.ExecContext(ctx, stmt,
		rec.SessionID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.StoppedAt.UTC().Format(time.RFC3339Nano),
		string(rec.Platform),
		rec.Language,
		rec.DurationSeconds,
		rec.PerformanceReport.OverallScore,
		rec.PerformanceReport.Partial,
		rec.TranscriptionCount,
		rec.TermsCount,
		nullString(rec.Notes),
		string(report),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.SessionID, err)
	}
	return nil
}

const selectColumns = `id, started_at, stopped_at, platform, language, duration_seconds, transcription_count, terms_count, notes, report_json`

// GetSession returns the record with id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (domain.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM sessions WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// ListSessions returns up to limit records, newest first. A limit of zero or less
// returns every record.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.SessionRecord, error) {
	var (
		rec                domain.SessionRecord
		startedAt, stopped string
		platform, report   string
		notes              sql.NullString
	)
	if err := row.Scan(&rec.SessionID, &startedAt, &stopped, &platform, &rec.Language,
		&rec.DurationSeconds, &rec.TranscriptionCount, &rec.TermsCount, &notes, &report); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan session: %w", err)
	}

	var err error
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return rec, fmt.Errorf("parse started_at: %w", err)
	}
	if rec.StoppedAt, err = time.Parse(time.RFC3339Nano, stopped); err != nil {
		return rec, fmt.Errorf("parse stopped_at: %w", err)
	}
	rec.Platform = domain.Platform(platform)
	rec.Notes = notes.String
	if err := json.Unmarshal([]byte(report), &rec.PerformanceReport); err != nil {
		return rec, fmt.Errorf("decode report: %w", err)
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
