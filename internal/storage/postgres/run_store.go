// Package postgres records harvest run summaries in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "harvest_runs"

// Config controls the Postgres connection pool backing the run ledger.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// RunStore implements submission.RunStore.
type RunStore struct {
	pool  pool
	table string
}

// NewRunStore connects a pool using cfg.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewRunStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewRunStoreWithPool constructs a store from an existing pool.
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the ledger table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	session TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	candidates INTEGER NOT NULL DEFAULT 0,
	records INTEGER NOT NULL DEFAULT 0,
	failures INTEGER NOT NULL DEFAULT 0,
	snapshot_uri TEXT,
	snapshot_sha256 TEXT,
	error_message TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// RecordRun upserts a run summary keyed by run id.
func (s *RunStore) RecordRun(ctx context.Context, run submission.RunRecord) error {
	if s == nil || s.pool == nil {
		return errors.New("run store is not configured")
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	session,
	started_at,
	finished_at,
	status,
	candidates,
	records,
	failures,
	snapshot_uri,
	snapshot_sha256,
	error_message
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (id) DO UPDATE SET
	finished_at = EXCLUDED.finished_at,
	status = EXCLUDED.status,
	candidates = EXCLUDED.candidates,
	records = EXCLUDED.records,
	failures = EXCLUDED.failures,
	snapshot_uri = EXCLUDED.snapshot_uri,
	snapshot_sha256 = EXCLUDED.snapshot_sha256,
	error_message = EXCLUDED.error_message`, s.table)

	args := []any{
		run.ID,
		run.Session,
		run.StartedAt,
		run.FinishedAt,
		string(run.Status),
		run.Candidates,
		run.Records,
		run.Failures,
		nullable(run.SnapshotURI),
		nullable(run.SnapshotSHA256),
		nullable(run.Error),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. An empty session
// lists every session.
func (s *RunStore) ListRuns(ctx context.Context, session string, limit int) ([]submission.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT id, session, started_at, finished_at, status, candidates, records, failures,
	snapshot_uri, snapshot_sha256, error_message
FROM %s
WHERE ($1 = '' OR session = $1)
ORDER BY started_at DESC
LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, query, session, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []submission.RunRecord
	for rows.Next() {
		var (
			run                   submission.RunRecord
			status                string
			uri, digest, errorMsg *string
		)
		if err := rows.Scan(
			&run.ID,
			&run.Session,
			&run.StartedAt,
			&run.FinishedAt,
			&status,
			&run.Candidates,
			&run.Records,
			&run.Failures,
			&uri,
			&digest,
			&errorMsg,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		run.Status = submission.RunStatus(status)
		run.SnapshotURI = deref(uri)
		run.SnapshotSHA256 = deref(digest)
		run.Error = deref(errorMsg)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
