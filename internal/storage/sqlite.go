package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tazhate/familycal/internal/service"

	_ "github.com/mattn/go-sqlite3"
)

// Queryable is satisfied by both *sql.DB and *sql.Tx.
type Queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Storage struct {
	db   *sql.DB
	q    Queryable
	loc  *time.Location
	inTx bool
}

var _ service.Store = (*Storage)(nil)

// New opens the SQLite database at dbPath and applies migrations. Times read
// back from the database are converted to loc.
func New(dbPath string, loc *time.Location) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN so concurrent writers
	// wait on busy_timeout instead of failing on lock upgrade.
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if loc == nil {
		loc = time.UTC
	}
	s := &Storage{db: db, q: db, loc: loc}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a transaction. Nested calls reuse the outer transaction.
func (s *Storage) InTx(ctx context.Context, fn func(service.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	txStore := &Storage{db: s.db, q: tx, loc: s.loc, inTx: true}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback tx: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			family_id TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			parent_event_id TEXT REFERENCES events(id),
			instance_date TEXT NOT NULL DEFAULT '',
			is_recurring_parent INTEGER NOT NULL DEFAULT 0,
			is_exception INTEGER NOT NULL DEFAULT 0,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			derived_kind TEXT NOT NULL DEFAULT '',
			recurrence_rule TEXT,
			settings TEXT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_family ON events(family_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_parent ON events(parent_event_id, instance_date)`,
		`CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_time)`,
		// One exception per (parent, date)
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_events_exception
			ON events(parent_event_id, instance_date) WHERE is_exception = 1`,
		// One derived event per (parent, date, kind)
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_events_derived
			ON events(parent_event_id, instance_date, derived_kind) WHERE derived_kind <> ''`,
		`CREATE TABLE IF NOT EXISTS assignments (
			event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			member_id TEXT NOT NULL,
			is_driver_helper INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (event_id, member_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_member ON assignments(member_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}
