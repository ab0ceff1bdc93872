package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"podforge/internal/api"
	"podforge/internal/config"
	"podforge/internal/logging"
	"podforge/internal/preflight"
	"podforge/internal/queue"
	"podforge/internal/segments"
	"podforge/internal/staging"
	"podforge/internal/workflow"
)

const (
	lockFileName     = "podforged.lock"
	janitorInterval  = time.Hour
	preflightTimeout = 30 * time.Second
)

// Options wires the daemon's collaborators.
type Options struct {
	// Config returns the live configuration snapshot.
	Config   func() *config.Config
	Store    *queue.Store
	Workflow *workflow.Manager
	Logger   *slog.Logger
	// SkipPreflight disables the startup readiness checks.
	SkipPreflight bool
}

// Daemon coordinates the worker pool and the status API and enforces
// single-instance execution.
type Daemon struct {
	config        func() *config.Config
	store         *queue.Store
	workflow      *workflow.Manager
	api           *api.Server
	logger        *slog.Logger
	skipPreflight bool

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon. The API server is only built when api.bind is set.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Store == nil || opts.Workflow == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	cfg := opts.Config()
	lockDir := cfg.Paths.LockDir
	if strings.TrimSpace(lockDir) == "" {
		lockDir = cfg.Paths.StateDir
	}
	lockPath := filepath.Join(lockDir, lockFileName)
	logger := logging.NewComponentLogger(opts.Logger, "daemon")

	d := &Daemon{
		config:        opts.Config,
		store:         opts.Store,
		workflow:      opts.Workflow,
		logger:        logger,
		skipPreflight: opts.SkipPreflight,
		lockPath:      lockPath,
		lock:          flock.New(lockPath),
	}
	jobs := api.NewJobService(opts.Store, segments.NewLibrary(cfg.Paths.TemplatesDir), cfg.Workflow.MaxAttempts)
	d.api = api.NewServer(api.ServerOptions{
		Bind:   cfg.API.Bind,
		Token:  cfg.API.Token,
		Jobs:   jobs,
		Status: d.Status,
		Logger: opts.Logger,
	})
	return d, nil
}

// Start acquires the instance lock and launches background processing.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another podforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	cfg := d.config()
	if !d.skipPreflight {
		d.runPreflight(runCtx, cfg)
	}
	d.sweepScratch(runCtx, cfg, true)

	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.Start(runCtx); err != nil {
		cancel()
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}

	d.cancel = cancel
	d.wg.Add(1)
	go d.janitor(runCtx)

	d.running.Store(true)
	d.logger.Info("podforge daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.Addr()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.Stop()
	d.workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("podforge daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the job store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddress returns the bound status API address, or "" when disabled.
func (d *Daemon) APIAddress() string {
	return d.api.Addr()
}

// LockPath returns the instance lock file location.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	cfg := d.config()
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		LockBackend:  cfg.Locking.Backend,
		APIAddress:   d.api.Addr(),
		Workflow:     api.FromStatusSummary(d.workflow.Status(ctx)),
		Dependencies: api.FromDependencies(preflight.CheckSystemDeps(cfg)),
	}
	if dirs, bytes, err := staging.Usage(cfg.Paths.ScratchDir); err == nil {
		status.ScratchDirs = dirs
		status.ScratchBytes = bytes
	}
	return status
}

func (d *Daemon) runPreflight(ctx context.Context, cfg *config.Config) {
	checkCtx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()
	for _, result := range preflight.Failed(preflight.RunAll(checkCtx, cfg, d.logger)) {
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldImpact, "jobs that need this resource will fail"),
		)
	}
}

// sweepScratch removes scratch directories of jobs that are not running.
// At startup every non-running directory is an orphan; later sweeps only
// remove directories past the retention window.
func (d *Daemon) sweepScratch(ctx context.Context, cfg *config.Config, orphans bool) {
	active := make(map[string]struct{})
	running, err := d.store.ListJobs(ctx, queue.ListFilter{Statuses: []queue.Status{queue.StatusRunning}})
	if err != nil {
		d.logger.Warn("scratch sweep skipped",
			logging.Error(err),
			logging.String(logging.FieldEventType, "scratch_cleanup_failed"),
		)
		return
	}
	for _, job := range running {
		active[job.ID] = struct{}{}
	}
	result := staging.Sweep(ctx, cfg.Paths.ScratchDir, staging.Options{
		MaxAge:        time.Duration(cfg.Workflow.ScratchRetentionHours) * time.Hour,
		Active:        active,
		RemoveOrphans: orphans,
	}, d.logger)
	if len(result.Removed) > 0 {
		d.logger.Info("scratch sweep complete",
			logging.Int("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
		)
	}
}

func (d *Daemon) janitor(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepScratch(ctx, d.config(), false)
		}
	}
}
