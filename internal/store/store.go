// Package store persists templates, patient encounters, learned refinement
// instructions and reasoning results. The same schema runs on SQLite for a
// single clinic install and on Postgres for shared deployments.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type Store struct {
	db       *sql.DB
	postgres bool
	now      func() time.Time
}

// New opens the database for driver and applies migrations. For sqlite, url
// is a file path.
func New(ctx context.Context, driver, url string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = sql.Open("sqlite", url+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	case DriverPostgres:
		db, err = sql.Open("pgx", url)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, postgres: driver == DriverPostgres, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS templates (
		template_key  TEXT PRIMARY KEY,
		template_name TEXT NOT NULL,
		fields        TEXT NOT NULL,
		deleted       INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_templates_deleted ON templates(deleted, template_name)`,
	`CREATE TABLE IF NOT EXISTS patients (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL DEFAULT '',
		dob                TEXT NOT NULL DEFAULT '',
		gender             TEXT NOT NULL DEFAULT '',
		encounter_date     TEXT NOT NULL DEFAULT '',
		template_key       TEXT NOT NULL DEFAULT '',
		template_data      TEXT NOT NULL DEFAULT '{}',
		generated_data     TEXT NOT NULL DEFAULT '{}',
		jobs_list          TEXT NOT NULL DEFAULT '[]',
		all_jobs_completed INTEGER NOT NULL DEFAULT 1,
		updated_at         TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_patients_updated ON patients(updated_at)`,
	`CREATE TABLE IF NOT EXISTS refinement_instructions (
		field_key    TEXT PRIMARY KEY,
		instructions TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reasoning_results (
		patient_id TEXT PRIMARY KEY,
		result     TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, v)
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
