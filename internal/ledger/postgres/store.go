// Package postgres stores the edition ledger in Postgres so several
// machines can share one history of generated DNA.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/papapumpkin/strata/internal/ledger"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/strata?sslmode=disable"
	defaultTable  = "strata_editions"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var _ ledger.Store = (*Store)(nil)

// Store is a Postgres-backed ledger.
type Store struct {
	db    *sql.DB
	table string
}

// Open connects with dsn (falls back to a local default), verifies the
// connection and ensures the ledger table exists.
func Open(ctx context.Context, dsn, table string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	if table == "" {
		table = defaultTable
	}
	if !validIdent(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL(table)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure ledger table: %w", err)
	}
	return &Store{db: db, table: table}, nil
}

func (s *Store) Driver() ledger.Driver { return ledger.DriverPostgres }

func (s *Store) Append(ctx context.Context, rec ledger.Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, insertSQL(s.table),
		rec.RunID, rec.Seq, rec.Config, rec.Edition, rec.DNA, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert edition %s/%d: %w", rec.RunID, rec.Seq, err)
	}
	return nil
}

func (s *Store) Records(ctx context.Context, runID string) ([]ledger.Record, error) {
	q, args := selectSQL(s.table, runID)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select editions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ledger.Record
	for rows.Next() {
		var r ledger.Record
		if err := rows.Scan(&r.RunID, &r.Seq, &r.Config, &r.Edition, &r.DNA, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }

func createTableSQL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		configuration INTEGER NOT NULL,
		edition INTEGER NOT NULL,
		dna TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`
}

func insertSQL(table string) string {
	return `INSERT INTO ` + table + ` (run_id, seq, configuration, edition, dna, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
}

func selectSQL(table, runID string) (string, []any) {
	q := `SELECT run_id, seq, configuration, edition, dna, created_at FROM ` + table
	if runID == "" {
		return q + ` ORDER BY run_id, seq`, nil
	}
	return q + ` WHERE run_id = $1 ORDER BY seq`, []any{runID}
}

// validIdent accepts unquoted identifiers, optionally schema-qualified.
func validIdent(name string) bool {
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r == '_', r >= 'a' && r <= 'z':
			case r >= '0' && r <= '9' && i > 0:
			default:
				return false
			}
		}
	}
	return true
}
