package workflow

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"podforge/internal/config"
	"podforge/internal/logging"
	"podforge/internal/media/pcm"
	"podforge/internal/queue"
	"podforge/internal/transcript"
)

// measureSource returns the source length that scales the job budget and
// the per-call timeouts. It is the largest of the submitter's estimate, the
// last transcript word end, and the main content length when that is a
// local WAV file. Measurement failures fall back to what is known; the
// attempt itself reports unreadable inputs.
func (m *Manager) measureSource(ctx context.Context, cfg *config.Config, job *queue.Job, logger *slog.Logger) time.Duration {
	estimate := job.Descriptor.SourceDuration()
	source := estimate
	log := logging.WithContext(ctx, logger)

	dir := filepath.Join(cfg.Paths.ScratchDir, job.ID, "measure")
	defer os.RemoveAll(dir)
	blobs := m.blobs(dir, cfg.Timeouts.Download.For(estimate))
	if tr, err := transcript.NewStore(blobs).Load(ctx, job.Descriptor.TranscriptRef); err != nil {
		log.Debug("transcript unavailable for source measurement", logging.Error(err))
	} else {
		source = max(source, millis(tr.DurationMS()))
	}

	if ms, ok := m.localMainContentMS(cfg, job); ok {
		source = max(source, millis(ms))
	}
	if source != estimate {
		log.Debug("source length measured",
			logging.Duration("estimate", estimate),
			logging.Duration("measured", source),
		)
	}
	return source
}

// localMainContentMS reads the WAV header of a local main content override.
// Remote sources are not fetched here; the transcript covers them.
func (m *Manager) localMainContentMS(cfg *config.Config, job *queue.Job) (int64, bool) {
	tmpl, err := m.templateSource(cfg).Load(job.TemplateID)
	if err != nil {
		return 0, false
	}
	index, ok := tmpl.MainContentIndex()
	if !ok {
		return 0, false
	}
	ref, ok := job.Descriptor.SegmentOverrides[index]
	if !ok || ref.IsRemote() || !strings.EqualFold(filepath.Ext(ref.Path), ".wav") {
		return 0, false
	}
	f, err := pcm.Open(ref.Path)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	return f.DurationMS(), true
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
