// Package history persists final subtitle events to SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rbright/livesub/internal/domain"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	defaultListLimit = 50
)

const schema = `
CREATE TABLE IF NOT EXISTS subtitles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id TEXT NOT NULL,
    run_id TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    original TEXT NOT NULL,
    translated TEXT NOT NULL,
    emitted_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subtitles_source_time ON subtitles (source_id, emitted_at);
`

// ErrInterim is returned when an interim event is offered for persistence.
var ErrInterim = errors.New("interim subtitles are not persisted")

// Entry is one stored subtitle.
type Entry struct {
	ID         int64           `json:"id"`
	SourceID   domain.SourceID `json:"source_id"`
	RunID      string          `json:"run_id"`
	Sequence   int             `json:"sequence"`
	Original   string          `json:"original"`
	Translated string          `json:"translated"`
	EmittedAt  time.Time       `json:"emitted_at"`
}

// Store is the SQLite-backed subtitle history.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath resolves $XDG_STATE_HOME/livesub/history.db.
func DefaultPath() (string, error) {
	stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME"))
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "livesub", "history.db"), nil
}

// Open creates or opens the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores one final subtitle.
func (s *Store) Record(ctx context.Context, ev domain.SubtitleEvent) error {
	if ev.Interim {
		return ErrInterim
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(
			ctx,
			`INSERT INTO subtitles (source_id, run_id, sequence, original, translated, emitted_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			string(ev.SourceID),
			ev.RunID,
			ev.Sequence,
			ev.Original,
			ev.Translated,
			ev.Timestamp,
		)
		return err
	})
}

// List returns the newest entries, newest first. An empty source lists all sources.
func (s *Store) List(ctx context.Context, source domain.SourceID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT id, source_id, run_id, sequence, original, translated, emitted_at FROM subtitles`
	args := []any{}
	if source != "" {
		query += ` WHERE source_id = ?`
		args = append(args, string(source))
	}
	query += ` ORDER BY emitted_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subtitles: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			sourceID  string
			emittedAt int64
		)
		if err := rows.Scan(&entry.ID, &sourceID, &entry.RunID, &entry.Sequence, &entry.Original, &entry.Translated, &emittedAt); err != nil {
			return nil, fmt.Errorf("scan subtitle: %w", err)
		}
		entry.SourceID = domain.SourceID(sourceID)
		entry.EmittedAt = time.UnixMilli(emittedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subtitles: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than cutoff and reports how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM subtitles WHERE emitted_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune subtitles: %w", err)
	}
	return removed, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}
