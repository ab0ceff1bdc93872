package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"podforge/internal/blob"
	"podforge/internal/config"
	"podforge/internal/ducking"
	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/render"
	"podforge/internal/segments"
	"podforge/internal/services"
	"podforge/internal/transcript"
	"podforge/internal/voicecmd"
)

const (
	stageLoad    = "load"
	stageAnalyze = "analyze"
	stageRender  = "render"
	stagePublish = "publish"
	stageCommit  = "commit"
)

// attemptRun carries the inputs of one attempt.
type attemptRun struct {
	job      *queue.Job
	worker   string
	attempt  int
	cfg      *config.Config
	started  time.Time
	deadline time.Time
	budget   time.Duration
	source   time.Duration
	logger   *slog.Logger
}

// analysis is the output of the parallel analyze stage.
type analysis struct {
	template *segments.Template
	segments []segments.Resolved
	commands voicecmd.Result
}

// runAttempt executes every stage once. Scratch files are removed when it
// returns; a published artifact is removed unless the commit succeeded.
func (m *Manager) runAttempt(ctx context.Context, run *attemptRun) error {
	cfg := run.cfg
	job := run.job
	scratch := filepath.Join(cfg.Paths.ScratchDir, job.ID, fmt.Sprintf("attempt-%d", run.attempt))
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return services.Wrap(services.ErrTransientIO, stageLoad, "scratch", "create scratch directory", err)
	}
	defer os.RemoveAll(scratch)

	blobs := m.blobs(scratch, cfg.Timeouts.Download.For(run.source))
	logging.WithContext(ctx, run.logger).Info("attempt started",
		logging.String(logging.FieldEventType, "attempt_start"),
		logging.Int("max_attempts", job.MaxAttempts),
	)

	loadCtx := services.WithStage(ctx, stageLoad)
	if err := m.checkpoint(loadCtx, run); err != nil {
		return err
	}
	tmpl, err := m.templateSource(cfg).Load(job.TemplateID)
	if err != nil {
		return err
	}
	tr, err := transcript.NewStore(blobs).Load(loadCtx, job.Descriptor.TranscriptRef)
	if err != nil {
		return err
	}

	analyzeCtx := services.WithStage(ctx, stageAnalyze)
	if err := m.checkpoint(analyzeCtx, run); err != nil {
		return err
	}
	result, err := m.analyze(analyzeCtx, run, tmpl, tr, filepath.Join(scratch, "synth"))
	if err != nil {
		return err
	}
	if err := m.audit(analyzeCtx, run, result.commands); err != nil {
		return err
	}

	renderCtx := services.WithStage(ctx, stageRender)
	if err := m.checkpoint(renderCtx, run); err != nil {
		return err
	}
	out, err := m.render(renderCtx, run, blobs, result, filepath.Join(scratch, "render"))
	if err != nil {
		return err
	}

	publishCtx := services.WithStage(ctx, stagePublish)
	if err := m.checkpoint(publishCtx, run); err != nil {
		return err
	}
	artifact := blobs.ArtifactRef(job.EpisodeID, job.ID, filepath.Ext(out.Path))
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := blobs.Remove(context.WithoutCancel(ctx), artifact); err != nil {
			run.logger.Warn("failed to discard partial artifact",
				logging.String("artifact_ref", artifact.String()),
				logging.Error(err),
			)
		}
	}()
	if _, err := blobs.Publish(publishCtx, out.Path, artifact); err != nil {
		return ioError(stagePublish, "publish", artifact.String(), err)
	}
	size, err := blobs.Confirm(publishCtx, artifact)
	if err != nil {
		return ioError(stagePublish, "confirm", artifact.String(), err)
	}

	commitCtx := services.WithStage(ctx, stageCommit)
	if err := m.checkpoint(commitCtx, run); err != nil {
		return err
	}
	err = m.store.CompleteJob(commitCtx, job.ID, run.worker, queue.Completion{
		ArtifactRef:   artifact,
		DurationMS:    out.DurationMS,
		FileSizeBytes: size,
	})
	if errors.Is(err, queue.ErrNotRunning) {
		return fmt.Errorf("%w: %w", errOwnershipLost, err)
	}
	if err != nil {
		return ioError(stageCommit, "complete job", "persist result", err)
	}
	committed = true

	logging.WithContext(commitCtx, run.logger).Info("job succeeded",
		logging.String(logging.FieldEventType, "job_succeeded"),
		logging.String("artifact_ref", artifact.String()),
		logging.Int64("duration_ms", out.DurationMS),
		logging.Int64("file_size_bytes", size),
		logging.Int("cuts", out.CutsApplied),
		logging.Int("music_cues", out.Cues),
		logging.Duration("elapsed", m.clock.Now().Sub(run.started)),
	)
	if cfg.Workflow.DeleteSourceOnSuccess {
		m.removeSource(commitCtx, run, blobs, tmpl)
	}
	return nil
}

// checkpoint runs at every stage boundary. It stops the attempt when the
// context ended, cancellation was requested, or the budget is spent.
func (m *Manager) checkpoint(ctx context.Context, run *attemptRun) error {
	stage := services.ScopeFrom(ctx).Stage
	if err := ctx.Err(); err != nil {
		return err
	}
	requested, err := m.store.CancelRequested(ctx, run.job.ID)
	if err != nil {
		return services.Wrap(services.ErrTransientIO, stage, "checkpoint", "read cancel flag", err)
	}
	if requested {
		return services.Wrap(services.ErrCancelled, stage, "checkpoint", queue.CancelReason, nil)
	}
	if now := m.clock.Now(); now.After(run.deadline) {
		return services.Wrap(services.ErrBudgetExceeded, stage, "checkpoint",
			fmt.Sprintf("budget of %s spent after %s", run.budget, now.Sub(run.started).Round(time.Second)), nil)
	}
	logging.WithContext(ctx, run.logger).Debug("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
	)
	return nil
}

// analyze resolves segments and detects voice commands concurrently.
func (m *Manager) analyze(ctx context.Context, run *attemptRun, tmpl *segments.Template, tr *transcript.Transcript, synthDir string) (analysis, error) {
	cfg := run.cfg
	out := analysis{template: tmpl}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resolver := segments.NewResolver(segments.Options{
			Synthesizer:      m.synthesizer,
			SynthesisTimeout: cfg.Timeouts.Synthesis.For(run.source),
			Logger:           run.logger,
		})
		resolved, err := resolver.Resolve(gctx, segments.Request{
			Template:   tmpl,
			Overrides:  run.job.Descriptor.SegmentOverrides,
			ScratchDir: synthDir,
		})
		out.segments = resolved
		return err
	})
	g.Go(func() error {
		detector, err := voicecmd.NewDetector(voicecmd.ConfigFrom(cfg.VoiceCommands), run.logger)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, stageAnalyze, "voice commands", "invalid phrase configuration", err)
		}
		out.commands = detector.Detect(tr)
		return nil
	})
	if err := g.Wait(); err != nil {
		return analysis{}, err
	}
	return out, nil
}

// audit records what happened to every detected command in this attempt.
func (m *Manager) audit(ctx context.Context, run *attemptRun, result voicecmd.Result) error {
	entries := make([]queue.AuditEntry, 0, len(result.Directives)+len(result.Superseded)+len(result.Unresolved))
	add := func(d voicecmd.Directive, outcome queue.Outcome) {
		entries = append(entries, queue.AuditEntry{
			JobID:          run.job.ID,
			Attempt:        run.attempt,
			Kind:           string(d.Kind),
			TriggerText:    d.TriggerText,
			TriggerStartMS: d.TriggerStartMS,
			TriggerEndMS:   d.TriggerEndMS,
			ScopeStartMS:   d.ScopeStartMS,
			ScopeEndMS:     d.ScopeEndMS,
			Outcome:        outcome,
			Note:           d.NoteText,
		})
	}
	for _, d := range result.Directives {
		add(d, queue.OutcomeApplied)
	}
	for _, d := range result.Superseded {
		add(d, queue.OutcomeSuperseded)
	}
	for _, u := range result.Unresolved {
		entries = append(entries, queue.AuditEntry{
			JobID:          run.job.ID,
			Attempt:        run.attempt,
			Kind:           string(u.Kind),
			TriggerText:    u.TriggerText,
			TriggerStartMS: u.TriggerStartMS,
			TriggerEndMS:   u.TriggerEndMS,
			Outcome:        queue.OutcomeUnresolved,
			Note:           u.Reason,
		})
	}
	if err := m.store.AppendAudit(ctx, entries...); err != nil {
		return ioError(stageAnalyze, "audit", "record voice command outcomes", err)
	}
	if len(entries) > 0 {
		logging.WithContext(ctx, run.logger).Info("voice commands detected",
			logging.String(logging.FieldEventType, "voice_commands"),
			logging.Int("applied", len(result.Directives)),
			logging.Int("superseded", len(result.Superseded)),
			logging.Int("unresolved", len(result.Unresolved)),
		)
	}
	return nil
}

// render makes every resolved segment local and mixes the episode. Cuts
// apply to the main content, which is the audio the transcript describes.
func (m *Manager) render(ctx context.Context, run *attemptRun, blobs BlobStore, in analysis, dir string) (*render.Output, error) {
	cfg := run.cfg
	mainIndex, _ := in.template.MainContentIndex()
	cuts := make([]render.Cut, 0, len(in.commands.Directives))
	for _, d := range in.commands.Directives {
		cuts = append(cuts, render.Cut{StartMS: d.CutStartMS(), EndMS: d.CutEndMS()})
	}

	segs := make([]render.Segment, 0, len(in.segments))
	for _, res := range in.segments {
		local := blobs.Resolve(ctx, res.Ref)
		if err := local.Error(); err != nil {
			return nil, err
		}
		seg := render.Segment{
			Index: res.Segment.OrderIndex,
			Kind:  string(res.Segment.Kind),
			Path:  local.Path,
		}
		if res.Segment.OrderIndex == mainIndex {
			seg.Cuts = cuts
		}
		segs = append(segs, seg)
	}

	opts := render.Options{
		SampleRate:     cfg.Render.SampleRate,
		Channels:       cfg.Render.Channels,
		MaxBufferBytes: int64(cfg.MaxBufferMBFor(run.job.Plan)) << 20,
		DeclickMS:      cfg.Render.DeclickMillis,
		OutputFormat:   cfg.Render.OutputFormat,
		EncodeTimeout:  cfg.Timeouts.Encode.For(run.source),
		Logger:         run.logger,
	}
	if m.transcoder != nil {
		opts.Transcoder = m.transcoder
		opts.FFprobeBinary = cfg.FFprobeBinary()
	}
	renderer, err := render.New(opts)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageRender, "configure", "invalid render settings", err)
	}
	return renderer.Render(ctx, render.Job{
		Segments: segs,
		Rules:    in.template.MusicRules,
		Curve:    ducking.CurveFrom(cfg.Music),
		Music: func(ctx context.Context, ref blob.Ref) (string, error) {
			res := blobs.Resolve(ctx, ref)
			return res.Path, res.Error()
		},
		ScratchDir: dir,
	})
}

// removeSource deletes the episode-supplied main content after success.
// Template audio is shared between episodes and never removed.
func (m *Manager) removeSource(ctx context.Context, run *attemptRun, blobs BlobStore, tmpl *segments.Template) {
	mainIndex, ok := tmpl.MainContentIndex()
	if !ok {
		return
	}
	ref, ok := run.job.Descriptor.SegmentOverrides[mainIndex]
	if !ok {
		return
	}
	if err := blobs.Remove(context.WithoutCancel(ctx), ref); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, run.logger), "failed to remove main content source", "source_cleanup_failed",
			logging.String("source_ref", ref.String()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "source audio remains in storage"),
		)
	}
}
