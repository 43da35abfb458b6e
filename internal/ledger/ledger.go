// Package ledger keeps the provenance of verified artifacts: every time an
// artifact is reused, computed or corrected an event is recorded.
//
// The default backend is a SQLite file in the results folder. A postgres://
// DSN stores events in a shared Postgres database instead.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// Event is one artifact resolution.
type Event struct {
	ID          int64
	RunID       string
	Participant string
	Session     string
	Contrast    string
	Kind        string
	Outcome     string
	SHA256      string
	SizeBytes   int64
	RecordedAt  time.Time
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Ledger is a handle to the event table.
type Ledger struct {
	db      *sql.DB
	dialect dialect
}

// NewRunID returns a fresh identifier grouping the events of one run.
func NewRunID() string {
	return uuid.NewString()
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open connects to the ledger and creates the event table if needed.
func Open(ctx context.Context, dsn string) (*Ledger, error) {
	if dsn == "" {
		return nil, errors.New("ledger dsn required")
	}
	l := &Ledger{dialect: dialectSQLite}
	driver := "sqlite"
	if isPostgres(dsn) {
		l.dialect = dialectPostgres
		driver = "pgx"
	} else if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	l.db = db
	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate(ctx context.Context) error {
	id := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if l.dialect == dialectPostgres {
		id = "id BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS artifact_events (
			` + id + `,
			run_id TEXT NOT NULL,
			participant TEXT NOT NULL,
			session TEXT NOT NULL,
			contrast TEXT NOT NULL,
			kind TEXT NOT NULL,
			outcome TEXT NOT NULL,
			sha256 TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			recorded_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS artifact_events_visit ON artifact_events (participant, session)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create artifact_events: %w", err)
		}
	}
	return nil
}

// rebind turns ? placeholders into $n for Postgres.
func (l *Ledger) rebind(query string) string {
	if l.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Record appends an event. A zero RecordedAt is set to now.
func (l *Ledger) Record(ctx context.Context, e Event) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, l.rebind(`INSERT INTO artifact_events
		(run_id, participant, session, contrast, kind, outcome, sha256, size_bytes, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.RunID, e.Participant, e.Session, e.Contrast, e.Kind, e.Outcome, e.SHA256, e.SizeBytes,
		e.RecordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// History returns the events of a visit, oldest first. An empty session
// returns all sessions of the participant.
func (l *Ledger) History(ctx context.Context, participant, session string) ([]Event, error) {
	query := `SELECT id, run_id, participant, session, contrast, kind, outcome, sha256, size_bytes, recorded_at
		FROM artifact_events WHERE participant = ?`
	args := []any{participant}
	if session != "" {
		query += ` AND session = ?`
		args = append(args, session)
	}
	query += ` ORDER BY id`
	rows, err := l.db.QueryContext(ctx, l.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var events []Event
	for rows.Next() {
		var e Event
		var ts string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Participant, &e.Session, &e.Contrast, &e.Kind, &e.Outcome, &e.SHA256, &e.SizeBytes, &ts); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("recorded_at %q: %w", ts, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Latest returns the newest event per contrast and kind of a visit, keyed
// by "<contrast>/<kind>".
func (l *Ledger) Latest(ctx context.Context, participant, session string) (map[string]Event, error) {
	events, err := l.History(ctx, participant, session)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]Event, len(events))
	for _, e := range events {
		latest[e.Contrast+"/"+e.Kind] = e
	}
	return latest, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
