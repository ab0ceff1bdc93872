package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"podforge/internal/api"
	"podforge/internal/config"
	"podforge/internal/daemonrun"
	"podforge/internal/preflight"
	"podforge/internal/queue"
	"podforge/internal/segments"
	"podforge/internal/staging"
)

const probeTimeout = 2 * time.Second

// JobAPI is served by a running daemon (api.Client) or directly by the job
// store (api.JobService).
type JobAPI interface {
	api.JobActionService
	List(ctx context.Context, query api.ListQuery) ([]api.Job, error)
	Audit(ctx context.Context, id string) ([]api.AuditEntry, error)
	Episode(ctx context.Context, id string) (*api.Episode, error)
	Submit(ctx context.Context, req api.SubmitRequest) (*api.Job, error)
}

// Connection is an open JobAPI plus how it was reached.
type Connection struct {
	JobAPI
	// Remote is true when requests go through the daemon.
	Remote bool
	// Status is the daemon's status when Remote is true.
	Status api.DaemonStatus
	store  *queue.Store
}

// Close releases the store when the connection is local.
func (c *Connection) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}

// Connect returns a daemon-backed connection when the API answers, and a
// store-backed one otherwise.
func Connect(ctx context.Context, cfg *config.Config) (*Connection, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if client, status, ok := probe(ctx, cfg); ok {
		return &Connection{JobAPI: client, Remote: true, Status: status}, nil
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	service := api.NewJobService(store, segments.NewLibrary(cfg.Paths.TemplatesDir), cfg.Workflow.MaxAttempts)
	return &Connection{JobAPI: service, store: store}, nil
}

// Status reports daemon status. With no daemon answering it builds the same
// view from the job store and the filesystem, marked not running.
func Status(ctx context.Context, cfg *config.Config) (api.DaemonStatus, error) {
	if _, status, ok := probe(ctx, cfg); ok {
		return status, nil
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return api.DaemonStatus{}, fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	status := api.DaemonStatus{
		DatabasePath: store.Path(),
		LockBackend:  cfg.Locking.Backend,
		Workflow:     api.WorkflowStatus{Workers: cfg.Workflow.Workers, QueueStats: api.MergeQueueStats(stats)},
		Dependencies: api.FromDependencies(preflight.CheckSystemDeps(cfg)),
	}
	if pid, ok := daemonrun.ReadPID(cfg.Paths.StateDir); ok && processAlive(pid) {
		// The process exists but the API did not answer: disabled or wedged.
		status.PID = pid
	}
	if dirs, bytes, err := staging.Usage(cfg.Paths.ScratchDir); err == nil {
		status.ScratchDirs = dirs
		status.ScratchBytes = bytes
	}
	return status, nil
}

func probe(ctx context.Context, cfg *config.Config) (*api.Client, api.DaemonStatus, bool) {
	if strings.TrimSpace(cfg.API.Bind) == "" {
		return nil, api.DaemonStatus{}, false
	}
	client := api.NewClient(dialAddress(cfg.API.Bind), cfg.API.Token)
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	status, err := client.Status(probeCtx)
	if err != nil {
		return nil, api.DaemonStatus{}, false
	}
	return client, status, true
}

// dialAddress turns a wildcard bind into a loopback address.
func dialAddress(bind string) string {
	bind = strings.TrimSpace(bind)
	switch {
	case strings.HasPrefix(bind, ":"):
		return "127.0.0.1" + bind
	case strings.HasPrefix(bind, "0.0.0.0:"):
		return "127.0.0.1" + strings.TrimPrefix(bind, "0.0.0.0")
	default:
		return bind
	}
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
