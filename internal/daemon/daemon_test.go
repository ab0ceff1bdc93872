package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"podforge/internal/api"
	"podforge/internal/config"
	"podforge/internal/daemon"
	"podforge/internal/joblock"
	"podforge/internal/queue"
	"podforge/internal/testsupport"
	"podforge/internal/workflow"
)

func newDaemon(t *testing.T, cfg *config.Config, store *queue.Store) *daemon.Daemon {
	t.Helper()
	locker, err := joblock.NewFileLocker(cfg.Paths.LockDir)
	if err != nil {
		t.Fatalf("NewFileLocker failed: %v", err)
	}
	t.Cleanup(func() { locker.Close() })

	current := func() *config.Config { return cfg }
	mgr := workflow.NewManager(workflow.Dependencies{
		Store:  store,
		Locker: locker,
		Config: current,
	})
	d, err := daemon.New(daemon.Options{
		Config:        current,
		Store:         store,
		Workflow:      mgr,
		SkipPreflight: true,
	})
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	status := d.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("expected running status, got %+v", status)
	}
	if status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("database path = %q, want %q", status.DatabasePath, cfg.DatabasePath())
	}
	if status.LockFilePath != filepath.Join(cfg.Paths.LockDir, "podforged.lock") {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("expected dependency statuses")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to report stopped")
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	store := testsupport.MustOpenStore(t, cfg)
	first := newDaemon(t, cfg, store)
	second := newDaemon(t, cfg, store)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second daemon to be refused the instance lock")
	}
	if first.APIAddress() != "" {
		t.Fatalf("api should be disabled, got %q", first.APIAddress())
	}
}

func TestDaemonServesStatusAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Token = "secret"
	store := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, store)

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	addr := d.APIAddress()
	if addr == "" {
		t.Fatal("expected api address")
	}

	status, err := api.NewClient(addr, "secret").Status(ctx)
	if err != nil {
		t.Fatalf("Status request failed: %v", err)
	}
	if !status.Running || status.PID != os.Getpid() {
		t.Fatalf("unexpected status %+v", status)
	}
	if _, err := api.NewClient(addr, "wrong").Status(ctx); err == nil {
		t.Fatal("expected wrong token to be rejected")
	}
}

func TestDaemonRemovesOrphanedScratchOnStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	store := testsupport.MustOpenStore(t, cfg)

	orphan := filepath.Join(cfg.Paths.ScratchDir, "job-gone", "attempt-1")
	if err := os.MkdirAll(orphan, 0o755); err != nil {
		t.Fatal(err)
	}

	d := newDaemon(t, cfg, store)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(orphan)); !os.IsNotExist(err) {
		t.Fatalf("expected orphaned scratch to be removed, stat err = %v", err)
	}
}
