// Package application assembles the service graph from configuration. Both
// the HTTP server and the rulectl CLI start from here.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/RuleSheet/internal/config"
	"github.com/JonMunkholm/RuleSheet/internal/core"
	"github.com/JonMunkholm/RuleSheet/internal/engine"
	"github.com/JonMunkholm/RuleSheet/internal/history"
	"github.com/JonMunkholm/RuleSheet/internal/scratch"
)

// App holds the wired components.
type App struct {
	Config  *config.Config
	Scratch *scratch.Dir
	Service *core.Service
	History history.Recorder

	pool *pgxpool.Pool
}

// New creates the scratch directory, connects run history, and builds the
// service. Close releases the database pool, if any.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	dir, err := scratch.New(cfg.Scratch.Dir)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Scratch: dir}

	if cfg.Database.Enabled() {
		pg, pool, err := history.Connect(ctx, cfg.Database.URL, history.PoolOptions{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("run history: %w", err)
		}
		app.History, app.pool = pg, pool
		slog.Info("run history stored in database")
	} else {
		app.History = history.NewMemory(0)
		slog.Info("run history kept in memory")
	}

	app.Service, err = core.NewService(core.Options{
		Scratch:       dir,
		Validation:    NewEngine(cfg.Engine, cfg.Engine.ValidationScript),
		Mapping:       NewEngine(cfg.Engine, cfg.Engine.MappingScript),
		Timeout:       cfg.Engine.Timeout,
		MaxConcurrent: cfg.Engine.MaxConcurrent,
		MaxWait:       cfg.Engine.MaxWaitTime,
		History:       app.History,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	slog.Info("application ready",
		"scratch", dir.Path(),
		"engine_candidates", cfg.Engine.Candidates(),
		"engine_timeout", cfg.Engine.Timeout.String(),
	)
	return app, nil
}

// NewEngine returns an engine launcher for one script.
func NewEngine(cfg config.EngineConfig, script string) *engine.Engine {
	return &engine.Engine{
		Candidates: cfg.Candidates(),
		Script:     script,
		WorkDir:    cfg.WorkDir,
	}
}

// Retention returns the reaper settings.
func (a *App) Retention() scratch.RetentionConfig {
	return scratch.RetentionConfig{
		TTL:           a.Config.Retention.TTL,
		SweepInterval: a.Config.Retention.SweepInterval,
	}
}

// Close releases external resources.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
