package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"podforge/internal/api"
	"podforge/internal/queue"
	"podforge/internal/segments"
	"podforge/internal/services"
	"podforge/internal/testsupport"
)

type templateMap map[string]*segments.Template

func (m templateMap) Load(id string) (*segments.Template, error) {
	if tmpl, ok := m[id]; ok {
		return tmpl, nil
	}
	return nil, services.Wrap(services.ErrNotFound, "template", "load", id, nil)
}

type fixture struct {
	store  *queue.Store
	base   string
	url    string
	client *api.Client
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	base := testsupport.BaseDir(cfg)
	tmpl := testsupport.BasicTemplate("weekly", filepath.Join(base, "intro.wav"))

	jobs := api.NewJobService(store, templateMap{tmpl.ID: tmpl}, 2)
	status := func(ctx context.Context) api.DaemonStatus {
		return api.DaemonStatus{Running: true, PID: 42, DatabasePath: store.Path()}
	}
	srv := httptest.NewServer(api.NewHandler(jobs, status, token, nil))
	t.Cleanup(srv.Close)
	return &fixture{
		store:  store,
		base:   base,
		url:    srv.URL,
		client: api.NewClient(strings.TrimPrefix(srv.URL, "http://"), token),
	}
}

func (f *fixture) submitRequest(episode string) api.SubmitRequest {
	return api.SubmitRequest{
		EpisodeID:        episode,
		TemplateID:       "weekly",
		TranscriptRef:    filepath.Join(f.base, episode+".json"),
		SegmentOverrides: map[string]string{"1": filepath.Join(f.base, episode+".wav")},
		SourceDurationMS: 60_000,
	}
}

func TestSubmitAndDescribeJob(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	job, err := f.client.Submit(ctx, f.submitRequest("ep-1"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.Status != string(queue.StatusQueued) || job.MaxAttempts != 2 || job.EpisodeID != "ep-1" {
		t.Fatalf("unexpected submitted job: %+v", job)
	}
	if job.SegmentOverrides["1"] != filepath.Join(f.base, "ep-1.wav") {
		t.Fatalf("override not echoed: %+v", job.SegmentOverrides)
	}

	got, err := f.client.Describe(ctx, job.ID)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if got == nil || got.ID != job.ID || got.SourceDurationMS != 60_000 {
		t.Fatalf("unexpected job: %+v", got)
	}

	missing, err := f.client.Describe(ctx, "unknown")
	if err != nil || missing != nil {
		t.Fatalf("expected nil job for unknown id, got %+v (err=%v)", missing, err)
	}

	episode, err := f.client.Episode(ctx, "ep-1")
	if err != nil {
		t.Fatalf("Episode failed: %v", err)
	}
	if episode == nil || episode.CurrentJobID != job.ID {
		t.Fatalf("unexpected episode: %+v", episode)
	}
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*api.SubmitRequest)
		status int
	}{
		{name: "missing main content", mutate: func(r *api.SubmitRequest) { r.SegmentOverrides = nil }, status: http.StatusBadRequest},
		{name: "bad override key", mutate: func(r *api.SubmitRequest) { r.SegmentOverrides = map[string]string{"main": "/a.wav"} }, status: http.StatusBadRequest},
		{name: "unknown template", mutate: func(r *api.SubmitRequest) { r.TemplateID = "daily" }, status: http.StatusNotFound},
		{name: "missing transcript", mutate: func(r *api.SubmitRequest) { r.TranscriptRef = "" }, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.submitRequest("ep-bad")
			tt.mutate(&req)
			_, err := f.client.Submit(ctx, req)
			var apiErr *api.APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.status {
				t.Fatalf("expected status %d, got %v", tt.status, err)
			}
		})
	}
}

func TestSubmitConflictsWithActiveJob(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	if _, err := f.client.Submit(ctx, f.submitRequest("ep-1")); err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	_, err := f.client.Submit(ctx, f.submitRequest("ep-1"))
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for second active job, got %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	first, err := f.client.Submit(ctx, f.submitRequest("ep-1"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := f.client.Submit(ctx, f.submitRequest("ep-2")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := f.client.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	queued, err := f.client.List(ctx, api.ListQuery{Statuses: []string{"queued"}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(queued) != 1 || queued[0].EpisodeID != "ep-2" {
		t.Fatalf("unexpected queued jobs: %+v", queued)
	}
	all, err := f.client.List(ctx, api.ListQuery{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two jobs, got %d", len(all))
	}
	if _, err := f.client.List(ctx, api.ListQuery{Statuses: []string{"bogus"}}); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestCancelAndRetryQueuedJob(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	job, err := f.client.Submit(ctx, f.submitRequest("ep-1"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	cancelled, err := f.client.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != string(queue.StatusFailed) || cancelled.ErrorKind != services.KindCancelled {
		t.Fatalf("queued job should fail as cancelled: %+v", cancelled)
	}

	requeued, err := f.client.Retry(ctx, []string{job.ID})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("expected one requeued job, got %d", requeued)
	}
	again, err := f.client.Retry(ctx, []string{job.ID})
	if err != nil {
		t.Fatalf("second Retry failed: %v", err)
	}
	if again != 0 {
		t.Fatalf("queued job must not be requeued twice, got %d", again)
	}

	if _, err := f.client.Cancel(ctx, "unknown"); !strings.Contains(errString(err), "404") {
		t.Fatalf("expected 404 cancelling unknown job, got %v", err)
	}
}

func TestAuditEndpoint(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	job, err := f.client.Submit(ctx, f.submitRequest("ep-1"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := f.store.AppendAudit(ctx, queue.AuditEntry{
		JobID: job.ID, Attempt: 1, Kind: "note_removal", TriggerText: "intern",
		TriggerStartMS: 1000, TriggerEndMS: 1300, ScopeStartMS: 1000, ScopeEndMS: 4000,
		Outcome: queue.OutcomeApplied, Note: "cut the cold open",
	}); err != nil {
		t.Fatalf("AppendAudit failed: %v", err)
	}

	entries, err := f.client.Audit(ctx, job.ID)
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Outcome != "applied" || entries[0].Note != "cut the cold open" {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
	if _, err := f.client.Audit(ctx, "unknown"); err == nil {
		t.Fatal("expected error for unknown job audit")
	}
}

func TestBearerTokenRequired(t *testing.T) {
	f := newFixture(t, "s3cret")
	ctx := context.Background()

	status, err := f.client.Status(ctx)
	if err != nil {
		t.Fatalf("Status with token failed: %v", err)
	}
	if !status.Running || status.PID != 42 {
		t.Fatalf("unexpected status: %+v", status)
	}

	resp, err := http.Get(f.url + "/api/status")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	wrong := api.NewClient(strings.TrimPrefix(f.url, "http://"), "nope")
	if _, err := wrong.Status(ctx); !strings.Contains(errString(err), "401") {
		t.Fatalf("expected 401 with wrong token, got %v", err)
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	handler := api.NewHandler(nil, nil, "", nil)
	req := httptest.NewRequest(http.MethodGet, "/api/nothing", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
