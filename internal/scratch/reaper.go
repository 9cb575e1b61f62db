package scratch

// reaper.go bounds disk growth of the scratch directory.
//
// Produced artifacts outlive the request that created them so they can be
// downloaded later. The reaper periodically removes regular files whose
// modification time is older than the configured TTL. Config requires the TTL
// to exceed the engine timeout, so in-flight request files are left alone.

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RetentionConfig holds artifact retention settings.
type RetentionConfig struct {
	TTL           time.Duration // Files older than this are removed; zero disables reaping
	SweepInterval time.Duration // How often to sweep (default: 1h)
}

// Sweep removes regular files last modified before now-ttl and returns how
// many were removed. Failing removals are skipped and reported together.
func (d *Dir) Sweep(ttl time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return 0, fmt.Errorf("read scratch directory: %w", err)
	}

	cutoff := now.Add(-ttl)
	removed := 0
	var failed int
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(d.path, entry.Name())); err != nil {
			failed++
			continue
		}
		removed++
	}

	if failed > 0 {
		return removed, fmt.Errorf("sweep: %d files could not be removed", failed)
	}
	return removed, nil
}

// StartReaper sweeps immediately, then every SweepInterval until ctx is
// cancelled. It returns at once when TTL is zero.
func (d *Dir) StartReaper(ctx context.Context, cfg RetentionConfig) {
	if cfg.TTL <= 0 {
		slog.Info("artifact reaper disabled")
		return
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}

	slog.Info("artifact reaper started",
		"dir", d.path,
		"ttl", cfg.TTL.String(),
		"interval", cfg.SweepInterval.String(),
	)

	d.runSweep(cfg.TTL)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("artifact reaper stopped")
			return
		case <-ticker.C:
			d.runSweep(cfg.TTL)
		}
	}
}

func (d *Dir) runSweep(ttl time.Duration) {
	start := time.Now()
	removed, err := d.Sweep(ttl, start)
	if err != nil {
		slog.Warn("artifact sweep incomplete", "removed", removed, "error", err)
		return
	}
	slog.Debug("artifact sweep completed",
		"removed", removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
