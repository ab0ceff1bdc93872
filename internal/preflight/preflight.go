package preflight

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"podforge/internal/blob"
	"podforge/internal/config"
	"podforge/internal/joblock"
	"podforge/internal/queue"
	"podforge/internal/services/synthesis"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minScratchFreeBytes is the free space below which renders are likely to
// fail part way through.
const minScratchFreeBytes = 1 << 30

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, logger *slog.Logger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir),
		CheckFreeSpace("Scratch free space", cfg.Paths.ScratchDir, minScratchFreeBytes),
		CheckDirectoryAccess("Artifact directory", cfg.Paths.ArtifactDir),
		CheckTemplates(cfg.Paths.TemplatesDir),
	}
	if cfg.Paths.LockDir != "" {
		results = append(results, CheckDirectoryAccess("Lock directory", cfg.Paths.LockDir))
	}
	if store, err := queue.OpenPath(cfg.DatabasePath()); err != nil {
		results = append(results, Result{Name: "Job database", Detail: err.Error()})
	} else {
		results = append(results, CheckJobDatabase(ctx, store))
		_ = store.Close()
	}

	if cfg.RemoteStorageEnabled() {
		store, err := blob.NewMinioStore(cfg.Storage)
		if err != nil {
			results = append(results, Result{Name: "Object store", Detail: err.Error()})
		} else {
			results = append(results, CheckObjectStore(ctx, store, cfg.Storage.ArtifactBucket))
		}
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Locking.Backend), "redis") {
		locker, err := joblock.NewRedisLocker(joblock.RedisOptions{
			Addr:        cfg.Locking.RedisAddr,
			Password:    cfg.Locking.RedisPassword,
			DB:          cfg.Locking.RedisDB,
			DialTimeout: 5 * time.Second,
			Logger:      logger,
		})
		if err != nil {
			results = append(results, Result{Name: "Redis", Detail: err.Error()})
		} else {
			results = append(results, CheckRedis(ctx, locker))
			_ = locker.Close()
		}
	}

	if cfg.Synthesis.Endpoint != "" {
		client := synthesis.NewClient(synthesis.Config{
			APIKey:   cfg.Synthesis.APIKey,
			Endpoint: cfg.Synthesis.Endpoint,
		})
		results = append(results, CheckSynthesis(ctx, client))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
