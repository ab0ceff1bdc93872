package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"podforge/internal/blob"
	"podforge/internal/config"
	"podforge/internal/joblock"
	"podforge/internal/media/pcm"
	"podforge/internal/queue"
	"podforge/internal/segments"
	"podforge/internal/services"
	"podforge/internal/testsupport"
	"podforge/internal/workflow"
)

var testFormat = pcm.Format{SampleRate: 8000, Channels: 1}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type templateMap map[string]*segments.Template

func (m templateMap) Load(id string) (*segments.Template, error) {
	tmpl, ok := m[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "template", "load", id, nil)
	}
	return tmpl, nil
}

// hookedBlobs runs publishHook before every publish.
type hookedBlobs struct {
	*blob.Resolver
	hook func(ctx context.Context, dest blob.Ref) error
}

func (b *hookedBlobs) Publish(ctx context.Context, localPath string, dest blob.Ref) (int64, error) {
	if b.hook != nil {
		if err := b.hook(ctx, dest); err != nil {
			return 0, err
		}
	}
	return b.Resolver.Publish(ctx, localPath, dest)
}

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	manager  *workflow.Manager
	tmpl     *segments.Template
	base     string
	clock    *fakeClock
	resolver *blob.Resolver

	mu          sync.Mutex
	publishHook func(ctx context.Context, dest blob.Ref) error
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithOutputFormat("wav")}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	base := testsupport.BaseDir(cfg)

	intro := filepath.Join(base, "media", "intro.wav")
	testsupport.WriteWAV(t, intro, testFormat, 1000, 1000)
	tmpl := testsupport.BasicTemplate("weekly", intro)

	locker, err := joblock.NewFileLocker(cfg.Paths.LockDir)
	if err != nil {
		t.Fatalf("NewFileLocker failed: %v", err)
	}
	t.Cleanup(func() { locker.Close() })

	h := &harness{
		cfg:      cfg,
		store:    store,
		tmpl:     tmpl,
		base:     base,
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		resolver: blob.NewResolver(nil, blob.Options{ArtifactDir: cfg.Paths.ArtifactDir}),
	}
	h.manager = workflow.NewManager(workflow.Dependencies{
		Store:  store,
		Locker: locker,
		Config: func() *config.Config { return cfg },
		Blobs: func(dir string, timeout time.Duration) workflow.BlobStore {
			return &hookedBlobs{Resolver: h.resolver.ForJob(dir, timeout), hook: h.hook}
		},
		Templates: templateMap{tmpl.ID: tmpl},
		Clock:     h.clock,
	})
	return h
}

func (h *harness) setPublishHook(fn func(ctx context.Context, dest blob.Ref) error) {
	h.mu.Lock()
	h.publishHook = fn
	h.mu.Unlock()
}

func (h *harness) hook(ctx context.Context, dest blob.Ref) error {
	h.mu.Lock()
	fn := h.publishHook
	h.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, dest)
}

// submit writes five seconds of main content plus a transcript that ends in
// a rollback trigger, and queues a job for it.
func (h *harness) submit(t *testing.T, episode string, maxAttempts int, sourceDuration time.Duration) (*queue.Job, string) {
	t.Helper()
	return h.submitWords(t, episode, maxAttempts, sourceDuration, 600, "one", "two", "three", "flubber")
}

// submitWords queues a job over five seconds of main content whose
// transcript holds words spaced gapMS apart.
func (h *harness) submitWords(t *testing.T, episode string, maxAttempts int, sourceDuration time.Duration, gapMS int64, words ...string) (*queue.Job, string) {
	t.Helper()
	mainPath := filepath.Join(h.base, "media", episode+".wav")
	transcriptPath := filepath.Join(h.base, "media", episode+".json")
	testsupport.WriteWAV(t, mainPath, testFormat, 5000, 2000)
	testsupport.WriteTranscript(t, transcriptPath, gapMS, words...)

	main, _ := h.tmpl.MainContentIndex()
	job, err := h.store.Submit(context.Background(), queue.Submission{
		EpisodeID:  episode,
		TemplateID: h.tmpl.ID,
		Descriptor: queue.Descriptor{
			SegmentOverrides: segments.Overrides{main: blob.LocalRef(mainPath)},
			TranscriptRef:    blob.LocalRef(transcriptPath),
			SourceDurationMS: sourceDuration.Milliseconds(),
		},
		MaxAttempts: maxAttempts,
	}, h.tmpl)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return job, mainPath
}

func (h *harness) job(t *testing.T, id string) *queue.Job {
	t.Helper()
	job, err := h.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job == nil {
		t.Fatalf("job %s missing", id)
	}
	return job
}

func (h *harness) artifactPath(job *queue.Job) string {
	return h.resolver.ArtifactRef(job.EpisodeID, job.ID, ".wav").Path
}

func TestRunJobPublishesEpisodeWithRollbackCut(t *testing.T) {
	h := newHarness(t)
	job, mainPath := h.submit(t, "ep-1", 2, 0)

	if err := h.manager.RunJob(context.Background(), job.ID); err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}

	done := h.job(t, job.ID)
	if done.Status != queue.StatusSucceeded || done.AttemptCount != 1 {
		t.Fatalf("unexpected final job: %+v", done)
	}
	if done.ArtifactRef.Path != h.artifactPath(done) {
		t.Fatalf("artifact ref = %s, want %s", done.ArtifactRef, h.artifactPath(done))
	}
	info, err := os.Stat(done.ArtifactRef.Path)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if info.Size() != done.FileSizeBytes {
		t.Fatalf("file size = %d, stat says %d", done.FileSizeBytes, info.Size())
	}
	// One second of intro plus five of content, minus the 1.7s rollback.
	if done.DurationMS <= 3000 || done.DurationMS >= 5000 {
		t.Fatalf("unexpected duration %dms", done.DurationMS)
	}

	episode, err := h.store.GetEpisode(context.Background(), "ep-1")
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if episode.ArtifactRef != done.ArtifactRef || episode.DurationMS != done.DurationMS {
		t.Fatalf("episode not linked to artifact: %+v", episode)
	}

	entries, err := h.store.AuditEntries(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("AuditEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %+v", entries)
	}
	if entries[0].Outcome != queue.OutcomeApplied || entries[0].Kind != "rollback_restart" || entries[0].Attempt != 1 {
		t.Fatalf("unexpected audit entry: %+v", entries[0])
	}

	if _, err := os.Stat(mainPath); !os.IsNotExist(err) {
		t.Fatalf("expected main content to be removed after success, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.ScratchDir, job.ID)); !os.IsNotExist(err) {
		t.Fatalf("expected scratch to be cleaned, stat err=%v", err)
	}
	if _, err := os.Stat(workflow.JobLogPath(h.cfg, job.ID)); err != nil {
		t.Fatalf("expected job log: %v", err)
	}
}

func TestRunJobMissingMainContentFailsNotFound(t *testing.T) {
	h := newHarness(t)
	job, mainPath := h.submit(t, "ep-missing", 2, 0)
	if err := os.Remove(mainPath); err != nil {
		t.Fatalf("remove main content: %v", err)
	}

	err := h.manager.RunJob(context.Background(), job.ID)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	done := h.job(t, job.ID)
	if done.Status != queue.StatusFailed || done.ErrorKind != services.KindNotFound {
		t.Fatalf("unexpected final job: %+v", done)
	}
	if done.AttemptCount != 1 {
		t.Fatalf("not-found must not be retried, attempts=%d", done.AttemptCount)
	}
}

func TestRunJobRetriesTransientPublishFailure(t *testing.T) {
	h := newHarness(t)
	job, _ := h.submit(t, "ep-retry", 2, 0)

	calls := 0
	h.setPublishHook(func(context.Context, blob.Ref) error {
		calls++
		if calls == 1 {
			return errors.New("disk hiccup")
		}
		return nil
	})

	if err := h.manager.RunJob(context.Background(), job.ID); err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}
	done := h.job(t, job.ID)
	if done.Status != queue.StatusSucceeded || done.AttemptCount != 2 {
		t.Fatalf("unexpected final job: %+v", done)
	}
	entries, err := h.store.AuditEntries(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("AuditEntries failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Attempt != 1 || entries[1].Attempt != 2 {
		t.Fatalf("expected one audit entry per attempt, got %+v", entries)
	}
}

func TestRunJobStopsAtAttemptCap(t *testing.T) {
	h := newHarness(t)
	job, mainPath := h.submit(t, "ep-cap", 2, 0)
	h.setPublishHook(func(context.Context, blob.Ref) error {
		return errors.New("bucket unavailable")
	})

	err := h.manager.RunJob(context.Background(), job.ID)
	if services.Kind(err) != services.KindTransientIO {
		t.Fatalf("expected transient failure, got %v", err)
	}
	done := h.job(t, job.ID)
	if done.Status != queue.StatusFailed || done.AttemptCount != 2 || done.ErrorKind != services.KindTransientIO {
		t.Fatalf("unexpected final job: %+v", done)
	}
	if _, err := os.Stat(h.artifactPath(done)); !os.IsNotExist(err) {
		t.Fatalf("no artifact expected after failure, stat err=%v", err)
	}
	if _, err := os.Stat(mainPath); err != nil {
		t.Fatalf("main content must survive a failed job: %v", err)
	}
	status := h.manager.Status(context.Background())
	if status.LastError == "" || status.LastJob == nil || status.LastJob.ID != job.ID {
		t.Fatalf("unexpected status summary: %+v", status)
	}
}

func TestRunJobHonorsCancellationBeforeCommit(t *testing.T) {
	h := newHarness(t)
	job, _ := h.submit(t, "ep-cancel", 2, 0)
	h.setPublishHook(func(ctx context.Context, _ blob.Ref) error {
		_, err := h.store.RequestCancel(ctx, job.ID)
		return err
	})

	err := h.manager.RunJob(context.Background(), job.ID)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	done := h.job(t, job.ID)
	if done.Status != queue.StatusFailed || done.ErrorKind != services.KindCancelled {
		t.Fatalf("unexpected final job: %+v", done)
	}
	if _, err := os.Stat(h.artifactPath(done)); !os.IsNotExist(err) {
		t.Fatalf("published artifact should be discarded, stat err=%v", err)
	}
	episode, err := h.store.GetEpisode(context.Background(), "ep-cancel")
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if !episode.ArtifactRef.IsZero() {
		t.Fatalf("episode should not reference an artifact: %+v", episode)
	}
}

func TestRunJobEnforcesBudgetForTwoHourSource(t *testing.T) {
	// A two-hour source gets 600s + 30s per minute: a 70 minute budget.
	tests := []struct {
		name    string
		elapsed time.Duration
		status  queue.Status
		kind    string
	}{
		{name: "within budget", elapsed: 60 * time.Minute, status: queue.StatusSucceeded},
		{name: "over budget", elapsed: 71 * time.Minute, status: queue.StatusFailed, kind: services.KindBudgetExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if got := h.cfg.BudgetFor("").For(2 * time.Hour); got != 70*time.Minute {
				t.Fatalf("budget = %s, want 70m", got)
			}
			job, _ := h.submit(t, "ep-long", 2, 2*time.Hour)
			h.setPublishHook(func(context.Context, blob.Ref) error {
				h.clock.Advance(tt.elapsed)
				return nil
			})

			err := h.manager.RunJob(context.Background(), job.ID)
			done := h.job(t, job.ID)
			if done.Status != tt.status || done.ErrorKind != tt.kind {
				t.Fatalf("unexpected final job: %+v (err=%v)", done, err)
			}
			if tt.kind != "" {
				if done.AttemptCount != 1 {
					t.Fatalf("budget failures must not be retried, attempts=%d", done.AttemptCount)
				}
				if _, statErr := os.Stat(h.artifactPath(done)); !os.IsNotExist(statErr) {
					t.Fatalf("artifact should be discarded, stat err=%v", statErr)
				}
			}
		})
	}
}

func TestRunJobScalesBudgetFromTranscriptWithoutEstimate(t *testing.T) {
	// Three words 40 minutes apart put the last word end just past two
	// hours, so the budget is about 70 minutes rather than the 10 minute base.
	tests := []struct {
		name    string
		elapsed time.Duration
		status  queue.Status
		kind    string
	}{
		{name: "within scaled budget", elapsed: 30 * time.Minute, status: queue.StatusSucceeded},
		{name: "over scaled budget", elapsed: 71 * time.Minute, status: queue.StatusFailed, kind: services.KindBudgetExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			job, _ := h.submitWords(t, "ep-unestimated", 1, 0, 40*60*1000, "one", "two", "three")
			h.setPublishHook(func(context.Context, blob.Ref) error {
				h.clock.Advance(tt.elapsed)
				return nil
			})

			err := h.manager.RunJob(context.Background(), job.ID)
			done := h.job(t, job.ID)
			if done.Status != tt.status || done.ErrorKind != tt.kind {
				t.Fatalf("unexpected final job: %+v (err=%v)", done, err)
			}
		})
	}
}

func TestCancelRequestWaitsForStageBoundary(t *testing.T) {
	h := newHarness(t)
	h.cfg.Workflow.HeartbeatInterval = 1
	job, _ := h.submit(t, "ep-midstage", 1, 0)

	var stageErr error
	h.setPublishHook(func(ctx context.Context, _ blob.Ref) error {
		if _, err := h.store.RequestCancel(ctx, job.ID); err != nil {
			return err
		}
		// Outlast at least one heartbeat tick inside the publish stage.
		time.Sleep(1500 * time.Millisecond)
		stageErr = ctx.Err()
		return nil
	})

	err := h.manager.RunJob(context.Background(), job.ID)
	if stageErr != nil {
		t.Fatalf("publish stage was interrupted mid-stage: %v", stageErr)
	}
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation at the commit boundary, got %v", err)
	}
	if done := h.job(t, job.ID); done.Status != queue.StatusFailed || done.ErrorKind != services.KindCancelled {
		t.Fatalf("unexpected final job: %+v", done)
	}
}

// failingLocker cannot reach its backend.
type failingLocker struct {
	mu    sync.Mutex
	calls int
}

func (l *failingLocker) TryLock(context.Context, string) (joblock.Lock, bool, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return nil, false, errors.New("redis: connection refused")
}

func (l *failingLocker) Close() error { return nil }

func (l *failingLocker) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestWorkerBacksOffWhenLockBackendFails(t *testing.T) {
	h := newHarness(t)
	h.cfg.Workflow.Workers = 1
	h.cfg.Workflow.QueuePollInterval = 1
	job, _ := h.submit(t, "ep-nolock", 1, 0)

	locker := &failingLocker{}
	manager := workflow.NewManager(workflow.Dependencies{
		Store:     h.store,
		Locker:    locker,
		Config:    func() *config.Config { return h.cfg },
		Blobs:     func(dir string, timeout time.Duration) workflow.BlobStore { return h.resolver.ForJob(dir, timeout) },
		Templates: templateMap{h.tmpl.ID: h.tmpl},
		Clock:     h.clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(1500 * time.Millisecond)
	manager.Stop()

	// Attempts land at 0s and 1s; the next waits two intervals.
	if calls := locker.Calls(); calls < 1 || calls > 3 {
		t.Fatalf("TryLock called %d times in 1.5s with a 1s poll interval", calls)
	}
	if got := h.job(t, job.ID); got.Status != queue.StatusQueued || got.AttemptCount != 0 {
		t.Fatalf("job should stay queued untouched: %+v", got)
	}
	if status := manager.Status(context.Background()); status.LastError == "" {
		t.Fatalf("lock failure should surface in status: %+v", status)
	}
}

func TestRunJobRejectsJobsThatAreNotQueued(t *testing.T) {
	h := newHarness(t)
	job, _ := h.submit(t, "ep-twice", 1, 0)
	if err := h.manager.RunJob(context.Background(), job.ID); err != nil {
		t.Fatalf("first RunJob failed: %v", err)
	}
	if err := h.manager.RunJob(context.Background(), job.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for finished job, got %v", err)
	}
	if err := h.manager.RunJob(context.Background(), "nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown job, got %v", err)
	}
}

func TestWorkerPoolProcessesEachJobOnce(t *testing.T) {
	h := newHarness(t)
	h.cfg.Workflow.Workers = 3

	var mu sync.Mutex
	publishes := make(map[string]int)
	h.setPublishHook(func(_ context.Context, dest blob.Ref) error {
		mu.Lock()
		publishes[filepath.Base(dest.Path)]++
		mu.Unlock()
		return nil
	})

	jobs := make([]*queue.Job, 0, 4)
	for _, ep := range []string{"ep-a", "ep-b", "ep-c", "ep-d"} {
		job, _ := h.submit(t, ep, 2, 0)
		jobs = append(jobs, job)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.manager.Stop()

	deadline := time.Now().Add(20 * time.Second)
	for {
		stats, err := h.store.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats[queue.StatusSucceeded] == len(jobs) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("jobs did not finish: %+v", stats)
		}
		time.Sleep(50 * time.Millisecond)
	}
	h.manager.Stop()

	mu.Lock()
	defer mu.Unlock()
	for _, job := range jobs {
		if got := publishes[job.ID+".wav"]; got != 1 {
			t.Fatalf("job %s published %d times", job.ID, got)
		}
		if done := h.job(t, job.ID); done.AttemptCount != 1 {
			t.Fatalf("job %s ran %d attempts", job.ID, done.AttemptCount)
		}
	}
}
