package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"podforge/internal/config"
	"podforge/internal/daemon"
	"podforge/internal/deps"
	"podforge/internal/logging"
	"podforge/internal/textutil"
)

// PIDFileName is written to the state directory while the daemon runs.
const PIDFileName = "podforged.pid"

// Options configures daemon process runtime behavior.
type Options struct {
	// ConfigPath is watched for hot reload. Empty disables reloading.
	ConfigPath    string
	LogLevel      string
	SkipPreflight bool
}

// Run starts the podforge daemon and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logCfg := *cfg
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		logCfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(&logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logDependencySnapshot(logger, cfg)

	watcher := config.NewWatcher(opts.ConfigPath, cfg)
	watcher.OnReload(func(*config.Config) {
		logger.Info("configuration reloaded",
			logging.String("path", opts.ConfigPath),
			logging.String(logging.FieldEventType, "config_reloaded"),
		)
	})
	watcher.OnError(func(err error) {
		logging.WarnWithContext(logger, "configuration reload failed", "config_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the config file; the previous settings stay active"),
		)
	})
	go func() {
		if err := watcher.Run(signalCtx); err != nil {
			logging.WarnWithContext(logger, "config watcher stopped", "config_watch_failed", logging.Error(err))
		}
	}()

	rt, err := Build(watcher, logger)
	if err != nil {
		logger.Error("build runtime", logging.Error(err))
		return err
	}
	defer rt.Close()

	d, err := daemon.New(daemon.Options{
		Config:        watcher.Current,
		Store:         rt.Store,
		Workflow:      rt.Manager,
		Logger:        logger,
		SkipPreflight: opts.SkipPreflight,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check for another running daemon and job store access"),
		)
		return err
	}

	// An instance refused by the lock must not touch the running daemon's pid file.
	pidPath := filepath.Join(cfg.Paths.StateDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		d.Stop()
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("podforge daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	d.Stop()
	return nil
}

// ReadPID returns the pid recorded by a running daemon.
func ReadPID(stateDir string) (int, bool) {
	data, err := os.ReadFile(filepath.Join(stateDir, PIDFileName))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("output_format", cfg.Render.OutputFormat),
		logging.Bool("remote_storage", cfg.RemoteStorageEnabled()),
		logging.Bool("synthesis_configured", cfg.Synthesis.Endpoint != ""),
		logging.String("lock_backend", cfg.Locking.Backend),
	}
	for _, status := range deps.CheckBinaries(deps.MediaRequirements(cfg.FFmpegBinary(), cfg.FFprobeBinary(), cfg.Render.OutputFormat)) {
		key := textutil.SanitizeToken(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
			logging.String(key+"_path", status.Path),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
