// Package postgres persists curator run history in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/clew-freshness/internal/curator"
)

const defaultTable = "curator_runs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for run rows.
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

// Store writes curator results into Postgres.
type Store struct {
	pool  pool
	table string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	return &Store{pool: p, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the run table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	total_resources INTEGER NOT NULL DEFAULT 0,
	failed_resources INTEGER NOT NULL DEFAULT 0,
	failure_rate_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	alert BOOLEAN NOT NULL DEFAULT FALSE,
	catalog_digest TEXT NOT NULL DEFAULT '',
	stats JSONB
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// RecordRun inserts a curator result row.
func (s *Store) RecordRun(ctx context.Context, result curator.Result) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("run store is not configured")
	}
	if result.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	var statsJSON []byte
	if result.Stats != nil {
		data, err := json.Marshal(result.Stats)
		if err != nil {
			return fmt.Errorf("marshal stats: %w", err)
		}
		statsJSON = data
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	status,
	message,
	started_at,
	finished_at,
	total_resources,
	failed_resources,
	failure_rate_percent,
	alert,
	catalog_digest,
	stats
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`, s.table)

	args := []any{
		result.RunID,
		result.Status,
		result.Message,
		result.StartedAt,
		result.FinishedAt,
		result.TotalResources,
		result.FailedResources,
		result.FailureRatePercent,
		result.Alert,
		result.CatalogDigest,
		statsJSON,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert curator run: %w", err)
	}
	return nil
}

// Recent returns up to limit results ordered by start time, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]curator.Result, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("run store is not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
SELECT run_id, status, message, started_at, finished_at,
	total_resources, failed_resources, failure_rate_percent, alert, catalog_digest, stats
FROM %s
ORDER BY started_at DESC
LIMIT $1`, s.table)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query curator runs: %w", err)
	}
	defer rows.Close()

	var out []curator.Result
	for rows.Next() {
		var (
			r         curator.Result
			statsJSON []byte
		)
		if err := rows.Scan(
			&r.RunID,
			&r.Status,
			&r.Message,
			&r.StartedAt,
			&r.FinishedAt,
			&r.TotalResources,
			&r.FailedResources,
			&r.FailureRatePercent,
			&r.Alert,
			&r.CatalogDigest,
			&statsJSON,
		); err != nil {
			return nil, fmt.Errorf("scan curator run: %w", err)
		}
		if len(statsJSON) > 0 {
			var stats curator.Stats
			if err := json.Unmarshal(statsJSON, &stats); err != nil {
				return nil, fmt.Errorf("decode stats for run %s: %w", r.RunID, err)
			}
			r.Stats = &stats
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate curator runs: %w", err)
	}
	return out, nil
}
