package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"podforge/internal/blob"
	"podforge/internal/config"
	"podforge/internal/joblock"
	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/render"
	"podforge/internal/segments"
)

// Clock reports the current time. Budgets are measured against it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// BlobStore is the subset of the blob resolver an attempt uses.
type BlobStore interface {
	Resolve(ctx context.Context, ref blob.Ref) blob.Result
	ArtifactRef(episodeID, jobID, ext string) blob.Ref
	Publish(ctx context.Context, localPath string, dest blob.Ref) (int64, error)
	Confirm(ctx context.Context, ref blob.Ref) (int64, error)
	Remove(ctx context.Context, ref blob.Ref) error
}

// BlobFactory returns a BlobStore that downloads into scratchDir, bounding
// each transfer by downloadTimeout.
type BlobFactory func(scratchDir string, downloadTimeout time.Duration) BlobStore

// TemplateSource loads templates by id.
type TemplateSource interface {
	Load(id string) (*segments.Template, error)
}

// Dependencies are the collaborators a Manager drives.
type Dependencies struct {
	Store  *queue.Store
	Locker joblock.Locker
	// Config returns the configuration snapshot for the next attempt.
	Config func() *config.Config
	Blobs  BlobFactory
	// Templates overrides the template library under the configured
	// templates directory.
	Templates   TemplateSource
	Synthesizer segments.Synthesizer
	Transcoder  render.Transcoder
	Logger      *slog.Logger
	Clock       Clock
}

// Manager coordinates the worker pool.
type Manager struct {
	store       *queue.Store
	locker      joblock.Locker
	config      func() *config.Config
	blobs       BlobFactory
	templates   TemplateSource
	synthesizer segments.Synthesizer
	transcoder  render.Transcoder
	logger      *slog.Logger
	clock       Clock

	heartbeat *HeartbeatMonitor

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job
	active  map[string]string
}

// NewManager constructs a workflow manager.
func NewManager(deps Dependencies) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}
	m := &Manager{
		store:       deps.Store,
		locker:      deps.Locker,
		config:      deps.Config,
		blobs:       deps.Blobs,
		templates:   deps.Templates,
		synthesizer: deps.Synthesizer,
		transcoder:  deps.Transcoder,
		logger:      logging.NewComponentLogger(logger, "workflow"),
		clock:       clock,
		active:      make(map[string]string),
	}
	m.heartbeat = NewHeartbeatMonitor(deps.Store, m.logger)
	return m
}

func (m *Manager) templateSource(cfg *config.Config) TemplateSource {
	if m.templates != nil {
		return m.templates
	}
	return segments.NewLibrary(cfg.Paths.TemplatesDir)
}
