package daemonrun

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"podforge/internal/blob"
	"podforge/internal/config"
	"podforge/internal/deps"
	"podforge/internal/joblock"
	"podforge/internal/logging"
	"podforge/internal/media/ffmpeg"
	"podforge/internal/queue"
	"podforge/internal/services/synthesis"
	"podforge/internal/workflow"
)

// Runtime holds the collaborators shared by the daemon and foreground runs.
type Runtime struct {
	Watcher *config.Watcher
	Store   *queue.Store
	Locker  joblock.Locker
	Manager *workflow.Manager
	Logger  *slog.Logger
}

// Build opens the store and lock backend and wires a workflow manager that
// reads its configuration from watcher.
func Build(watcher *config.Watcher, logger *slog.Logger) (*Runtime, error) {
	if watcher == nil || watcher.Current() == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg := watcher.Current()

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	locker, err := joblock.New(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open lock backend: %w", err)
	}

	var objects blob.ObjectStore
	if cfg.RemoteStorageEnabled() {
		minioStore, err := blob.NewMinioStore(cfg.Storage)
		if err != nil {
			_ = locker.Close()
			_ = store.Close()
			return nil, fmt.Errorf("connect object store: %w", err)
		}
		objects = minioStore
	}

	wfDeps := workflow.Dependencies{
		Store:  store,
		Locker: locker,
		Config: watcher.Current,
		Blobs: func(scratchDir string, downloadTimeout time.Duration) workflow.BlobStore {
			return blob.NewResolver(objects, resolverOptions(watcher.Current(), logger)).ForJob(scratchDir, downloadTimeout)
		},
		Logger: logger,
	}
	if cfg.Synthesis.Endpoint != "" {
		wfDeps.Synthesizer = synthesis.NewClient(synthesis.Config{
			APIKey:     cfg.Synthesis.APIKey,
			Endpoint:   cfg.Synthesis.Endpoint,
			Voice:      cfg.Synthesis.DefaultVoice,
			SampleRate: cfg.Render.SampleRate,
			Channels:   cfg.Render.Channels,
		})
	}
	if ffmpegAvailable(cfg) {
		wfDeps.Transcoder = ffmpeg.New(cfg.FFmpegBinary())
	}

	return &Runtime{
		Watcher: watcher,
		Store:   store,
		Locker:  locker,
		Manager: workflow.NewManager(wfDeps),
		Logger:  logger,
	}, nil
}

// Close releases the lock backend and the job store.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	return errors.Join(r.Locker.Close(), r.Store.Close())
}

func resolverOptions(cfg *config.Config, logger *slog.Logger) blob.Options {
	opts := blob.Options{
		ArtifactDir: cfg.Paths.ArtifactDir,
		Attempts:    cfg.Storage.RetryAttempts,
		BaseDelay:   time.Duration(cfg.Storage.RetryBaseMillis) * time.Millisecond,
		Logger:      logger,
	}
	if cfg.RemoteStorageEnabled() {
		opts.ArtifactBucket = cfg.Storage.ArtifactBucket
		opts.ArtifactPrefix = cfg.Storage.ArtifactPrefix
	}
	return opts
}

func ffmpegAvailable(cfg *config.Config) bool {
	return deps.Check(deps.Requirement{Name: "FFmpeg", Command: cfg.FFmpegBinary()}).Available
}
