package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `CREATE TABLE IF NOT EXISTS engine_runs (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	file_name   TEXT NOT NULL,
	artifact    TEXT NOT NULL DEFAULT '',
	exit_code   INTEGER NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS engine_runs_created_at_idx ON engine_runs (created_at DESC);`

// PoolOptions tunes the connection pool.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Postgres stores runs in the engine_runs table.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for url, verifies it, and ensures the schema exists.
// The caller owns the returned pool and must Close it.
func Connect(ctx context.Context, url string, opts PoolOptions) (*Postgres, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		cfg.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	p := NewPostgres(pool)
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return p, pool, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the engine_runs table if needed.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create engine_runs table: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, run Run) error {
	run = stamp(run)

	query := `INSERT INTO engine_runs
		(id, kind, file_name, artifact, exit_code, status, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := p.pool.Exec(ctx, query,
		run.ID, run.Kind, run.FileName, run.Artifact, run.ExitCode,
		string(run.Status), run.Error, run.DurationMS, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record engine run: %w", err)
	}
	return nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `SELECT id, kind, file_name, artifact, exit_code, status, error, duration_ms, created_at
		FROM engine_runs ORDER BY created_at DESC LIMIT $1`

	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query engine runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			run    Run
			status string
		)
		if err := rows.Scan(&run.ID, &run.Kind, &run.FileName, &run.Artifact, &run.ExitCode,
			&status, &run.Error, &run.DurationMS, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan engine run: %w", err)
		}
		run.Status = Status(status)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}
