// Package postgres provides the durable PostgreSQL backend for analysis
// history and stored policies, backed by a pgx connection pool. The schema
// is applied on startup so a fresh database is usable without a separate
// migration step.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/honeybadger-technologies/finopsguard/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
    id                        BIGSERIAL PRIMARY KEY,
    request_id                TEXT NOT NULL UNIQUE,
    started_at                TIMESTAMPTZ NOT NULL,
    completed_at              TIMESTAMPTZ NOT NULL,
    duration_ms               BIGINT NOT NULL DEFAULT 0,
    iac_type                  TEXT NOT NULL,
    environment               TEXT NOT NULL,
    estimated_monthly_cost    NUMERIC(18,6) NOT NULL,
    estimated_first_week_cost NUMERIC(18,6) NOT NULL,
    resource_count            INTEGER NOT NULL DEFAULT 0,
    policy_status             TEXT NOT NULL DEFAULT '',
    policy_id                 TEXT NOT NULL DEFAULT '',
    risk_flags                TEXT[] NOT NULL DEFAULT '{}',
    recommendations_count     INTEGER NOT NULL DEFAULT 0,
    result_json               JSONB NOT NULL,
    created_at                TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analyses_started_at
    ON analyses (started_at DESC, request_id DESC);
CREATE INDEX IF NOT EXISTS idx_analyses_environment
    ON analyses (environment);
CREATE INDEX IF NOT EXISTS idx_analyses_policy_status
    ON analyses (policy_status);

CREATE TABLE IF NOT EXISTS policies (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    budget       NUMERIC(18,6),
    expression   JSONB,
    on_violation TEXT NOT NULL DEFAULT 'advisory',
    enabled      BOOLEAN NOT NULL DEFAULT TRUE,
    created_by   TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policies_enabled
    ON policies (enabled);
`

// Store wraps a PostgreSQL connection pool. It implements both the
// analysis store and the policy persister.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New creates a connection pool, verifies connectivity and applies the
// schema.
func New(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool, log: log}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("connected to postgres",
		zap.Int32("max_conns", poolConfig.MaxConns),
		zap.Int32("min_conns", poolConfig.MinConns))

	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Healthy pings the database with a bounded deadline.
func (s *Store) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
