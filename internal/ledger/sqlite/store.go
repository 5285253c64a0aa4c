// Package sqlite stores the edition ledger in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/papapumpkin/strata/internal/ledger"
)

const defaultPath = "strata.db"

var _ ledger.Store = (*Store)(nil)

// Store is a SQLite-backed ledger.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the ledger database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; concurrent appends queue on the pool.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS editions (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		configuration INTEGER NOT NULL,
		edition INTEGER NOT NULL,
		dna TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create editions table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Driver() ledger.Driver { return ledger.DriverSQLite }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Append(ctx context.Context, rec ledger.Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO editions(run_id, seq, configuration, edition, dna, created_at) VALUES(?,?,?,?,?,?)`,
		rec.RunID, rec.Seq, rec.Config, rec.Edition, rec.DNA, rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert edition %s/%d: %w", rec.RunID, rec.Seq, err)
	}
	return nil
}

func (s *Store) Records(ctx context.Context, runID string) ([]ledger.Record, error) {
	q := `SELECT run_id, seq, configuration, edition, dna, created_at FROM editions`
	var args []any
	if runID != "" {
		q += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	q += ` ORDER BY run_id, seq`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select editions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ledger.Record
	for rows.Next() {
		var (
			r  ledger.Record
			ts string
		)
		if err := rows.Scan(&r.RunID, &r.Seq, &r.Config, &r.Edition, &r.DNA, &ts); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", ts, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }
