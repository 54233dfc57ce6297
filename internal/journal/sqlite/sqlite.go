package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mod-net/stack/internal/journal"
)

// DB implements journal.Store for SQLite (modernc.org/sqlite driver,
// CGO-free). DSN is a filesystem path; use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	if p != ":memory:" && !strings.HasPrefix(p, "file:") {
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return nil, err
		}
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lifecycle_events(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			service TEXT NOT NULL,
			pid INTEGER NOT NULL,
			state TEXT NOT NULL,
			forced BOOLEAN NOT NULL,
			detail TEXT NULL,
			at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_events_service ON lifecycle_events(service, id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Append(ctx context.Context, ev journal.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lifecycle_events(service, pid, state, forced, detail, at) VALUES(?,?,?,?,?,?)`,
		ev.Service, ev.PID, ev.State, ev.Forced, nullable(ev.Detail), ev.At.UTC())
	return err
}

func (s *DB) Recent(ctx context.Context, service string, limit int) ([]journal.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT service, pid, state, forced, COALESCE(detail,''), at FROM lifecycle_events`
	args := []any{}
	if service != "" {
		q += ` WHERE service = ?`
		args = append(args, service)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []journal.Event
	for rows.Next() {
		var ev journal.Event
		if err := rows.Scan(&ev.Service, &ev.PID, &ev.State, &ev.Forced, &ev.Detail, &ev.At); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *DB) Last(ctx context.Context, service string) (journal.Event, bool, error) {
	evs, err := s.Recent(ctx, service, 1)
	if err != nil {
		return journal.Event{}, false, err
	}
	if len(evs) == 0 {
		return journal.Event{}, false, nil
	}
	return evs[0], true, nil
}

func (s *DB) Close() error { return s.db.Close() }

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
