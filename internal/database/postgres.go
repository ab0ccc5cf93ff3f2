package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xZoluGames/skinfetch/internal/engine"
	"github.com/xZoluGames/skinfetch/internal/progress"
)

// PostgresConfig controls the Postgres connection pool for run history.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execPinger interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresProvider writes run history into Postgres.
type PostgresProvider struct {
	pool execPinger
}

// NewPostgres connects a run-history provider using the provided config.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresProvider, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresProvider{pool: pool}, nil
}

// NewPostgresWithPool constructs a provider from an existing pool (primarily
// for testing).
func NewPostgresWithPool(pool execPinger) (*PostgresProvider, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresProvider{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (p *PostgresProvider) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

// Ping verifies the database is reachable.
func (p *PostgresProvider) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return fmt.Errorf("run history store is not configured")
	}
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// SaveRun inserts the run's final accounting. Expected schema:
//
// CREATE TABLE runs (
//
//	run_id UUID PRIMARY KEY,
//	profile TEXT NOT NULL,
//	started_at TIMESTAMPTZ NOT NULL,
//	finished_at TIMESTAMPTZ NOT NULL,
//	total_units BIGINT NOT NULL,
//	completed BIGINT NOT NULL,
//	succeeded BIGINT NOT NULL,
//	records BIGINT NOT NULL,
//	success_rate DOUBLE PRECISION NOT NULL,
//	units_per_minute DOUBLE PRECISION NOT NULL,
//	duration_ms BIGINT NOT NULL,
//	best_region TEXT,
//	pool_scores JSONB,
//	merge_existing BIGINT NOT NULL DEFAULT 0,
//	merge_new BIGINT NOT NULL DEFAULT 0,
//	merge_updated BIGINT NOT NULL DEFAULT 0,
//	merge_skipped BIGINT NOT NULL DEFAULT 0,
//	merge_total BIGINT NOT NULL DEFAULT 0,
//	created_at TIMESTAMPTZ DEFAULT NOW()
//
// );
func (p *PostgresProvider) SaveRun(ctx context.Context, summary engine.RunSummary) error {
	if p == nil || p.pool == nil {
		return fmt.Errorf("run history store is not configured")
	}
	if summary.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	scoresJSON, err := json.Marshal(summary.PoolScores)
	if err != nil {
		return fmt.Errorf("marshal pool scores: %w", err)
	}
	query := `
INSERT INTO runs (
	run_id, profile, started_at, finished_at, total_units, completed,
	succeeded, records, success_rate, units_per_minute, duration_ms,
	best_region, pool_scores, merge_existing, merge_new, merge_updated,
	merge_skipped, merge_total
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
)
ON CONFLICT (run_id) DO NOTHING;
`
	_, err = p.pool.Exec(ctx, query,
		summary.RunID,
		summary.Profile,
		summary.StartedAt,
		summary.FinishedAt,
		int64(summary.TotalUnits),
		int64(summary.Completed),
		int64(summary.Succeeded),
		int64(summary.Records),
		summary.SuccessRate,
		summary.UnitsPerMin,
		summary.Duration.Milliseconds(),
		summary.BestRegion,
		scoresJSON,
		int64(summary.MergeExisting),
		int64(summary.MergeNew),
		int64(summary.MergeUpdated),
		int64(summary.MergeSkipped),
		int64(summary.MergeTotal),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// SaveSnapshot appends one progress snapshot. Expected schema:
//
// CREATE TABLE run_progress (
//
//	id BIGSERIAL PRIMARY KEY,
//	run_id UUID NOT NULL,
//	stage TEXT NOT NULL,
//	recorded_at TIMESTAMPTZ NOT NULL,
//	total_units BIGINT NOT NULL,
//	completed BIGINT NOT NULL,
//	succeeded BIGINT NOT NULL,
//	failed BIGINT NOT NULL,
//	records BIGINT NOT NULL,
//	requests BIGINT NOT NULL,
//	consecutive_errors BIGINT NOT NULL,
//	completion_pct DOUBLE PRECISION NOT NULL,
//	success_rate DOUBLE PRECISION NOT NULL,
//	units_per_minute DOUBLE PRECISION NOT NULL
//
// );
func (p *PostgresProvider) SaveSnapshot(ctx context.Context, snap progress.Snapshot) error {
	if p == nil || p.pool == nil {
		return fmt.Errorf("run history store is not configured")
	}
	if snap.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	query := `
INSERT INTO run_progress (
	run_id, stage, recorded_at, total_units, completed, succeeded, failed,
	records, requests, consecutive_errors, completion_pct, success_rate,
	units_per_minute
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
);
`
	_, err := p.pool.Exec(ctx, query,
		snap.RunID,
		string(snap.Stage),
		snap.Timestamp,
		int64(snap.TotalUnits),
		int64(snap.Completed),
		int64(snap.Succeeded),
		int64(snap.Failed),
		int64(snap.Records),
		int64(snap.Requests),
		snap.ConsecutiveErrors,
		snap.CompletionPct,
		snap.SuccessRate,
		snap.UnitsPerMin,
	)
	if err != nil {
		return fmt.Errorf("insert run progress: %w", err)
	}
	return nil
}
