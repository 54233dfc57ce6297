package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mod-net/stack/internal/journal"
)

// DB implements journal.Store for PostgreSQL via the pgx stdlib driver.
// Used when several operator hosts share one journal.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lifecycle_events(
			id BIGSERIAL PRIMARY KEY,
			service TEXT NOT NULL,
			pid INTEGER NOT NULL,
			state TEXT NOT NULL,
			forced BOOLEAN NOT NULL,
			detail TEXT NULL,
			at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_events_service ON lifecycle_events(service, id);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Append(ctx context.Context, ev journal.Event) error {
	detail := sql.NullString{String: ev.Detail, Valid: ev.Detail != ""}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO lifecycle_events(service, pid, state, forced, detail, at) VALUES($1,$2,$3,$4,$5,$6)`,
		ev.Service, ev.PID, ev.State, ev.Forced, detail, ev.At.UTC())
	return err
}

func (p *DB) Recent(ctx context.Context, service string, limit int) ([]journal.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT service, pid, state, forced, COALESCE(detail,''), at FROM lifecycle_events`
	args := []any{}
	if service != "" {
		q += ` WHERE service = $1 ORDER BY id DESC LIMIT $2`
		args = append(args, service, limit)
	} else {
		q += ` ORDER BY id DESC LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
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

func (p *DB) Last(ctx context.Context, service string) (journal.Event, bool, error) {
	evs, err := p.Recent(ctx, service, 1)
	if err != nil {
		return journal.Event{}, false, err
	}
	if len(evs) == 0 {
		return journal.Event{}, false, nil
	}
	return evs[0], true, nil
}

func (p *DB) Close() error { return p.db.Close() }
