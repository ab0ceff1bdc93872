package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podforge/internal/queue"
	"podforge/internal/services/synthesis"
	"podforge/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_Failures(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "missing", path: filepath.Join(t.TempDir(), "nope"), want: "does not exist"},
		{name: "file", path: file, want: "is not a directory"},
		{name: "empty", path: "", want: "not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckDirectoryAccess("test", tt.path)
			if result.Passed {
				t.Fatal("expected failure")
			}
			if !strings.Contains(result.Detail, tt.want) {
				t.Fatalf("detail %q does not mention %q", result.Detail, tt.want)
			}
		})
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("scratch", dir, 1); !result.Passed {
		t.Fatalf("expected pass with 1 byte minimum, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("scratch", dir, 1<<62); result.Passed {
		t.Fatal("expected failure with an impossible minimum")
	}
	if result := CheckFreeSpace("scratch", filepath.Join(dir, "missing"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckTemplates(t *testing.T) {
	dir := t.TempDir()
	if result := CheckTemplates(dir); result.Passed {
		t.Fatal("expected failure for empty library")
	}

	body := "id: weekly\nname: Weekly\nsegments:\n  - kind: main_content\n    source: user_provided_per_episode\n    order_index: 0\n"
	if err := os.WriteFile(filepath.Join(dir, "weekly.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckTemplates(dir); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}

	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("segments: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckTemplates(dir)
	if result.Passed || !strings.Contains(result.Detail, "1 invalid") {
		t.Fatalf("expected invalid template report, got %+v", result)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type bucketPingFunc func(context.Context, string) error

func (f bucketPingFunc) Ping(ctx context.Context, bucket string) error { return f(ctx, bucket) }

func TestCheckRedis(t *testing.T) {
	if result := CheckRedis(context.Background(), pingFunc(func(context.Context) error { return nil })); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	result := CheckRedis(context.Background(), pingFunc(func(context.Context) error { return context.DeadlineExceeded }))
	if result.Passed || result.Detail != "timed out" {
		t.Fatalf("expected timeout failure, got %+v", result)
	}
}

func TestCheckObjectStore(t *testing.T) {
	var gotBucket string
	ok := bucketPingFunc(func(_ context.Context, bucket string) error {
		gotBucket = bucket
		return nil
	})
	if result := CheckObjectStore(context.Background(), ok, "episodes"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if gotBucket != "episodes" {
		t.Fatalf("pinged bucket %q", gotBucket)
	}
	missing := bucketPingFunc(func(context.Context, string) error { return errors.New("bucket missing") })
	if result := CheckObjectStore(context.Background(), missing, "episodes"); result.Passed {
		t.Fatal("expected failure")
	}
}

func TestCheckSynthesis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tests := []struct {
		name   string
		key    string
		passed bool
		detail string
	}{
		{name: "accepted", key: "good-key", passed: true, detail: "Reachable"},
		{name: "rejected", key: "bad-key", passed: false, detail: "auth failed (invalid api key)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := synthesis.NewClient(synthesis.Config{Endpoint: srv.URL, APIKey: tt.key})
			result := CheckSynthesis(context.Background(), client)
			if result.Passed != tt.passed || result.Detail != tt.detail {
				t.Fatalf("got %+v", result)
			}
		})
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestRunAll_LocalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := RunAll(context.Background(), cfg, nil)

	names := make(map[string]Result, len(results))
	for _, r := range results {
		names[r.Name] = r
	}
	for _, want := range []string{"State directory", "Scratch directory", "Artifact directory", "Lock directory", "Templates", "Job database"} {
		if _, ok := names[want]; !ok {
			t.Fatalf("missing check %q in %v", want, results)
		}
	}
	for _, remote := range []string{"Object store", "Redis", "Synthesis"} {
		if _, ok := names[remote]; ok {
			t.Fatalf("unexpected remote check %q for local config", remote)
		}
	}
	if db := names["Job database"]; !db.Passed {
		t.Fatalf("job database check failed: %s", db.Detail)
	}
	if !names["Scratch directory"].Passed {
		t.Fatalf("scratch check failed: %s", names["Scratch directory"].Detail)
	}
	if names["Templates"].Passed {
		t.Fatal("expected empty template library to fail")
	}
	found := false
	for _, r := range Failed(results) {
		found = found || r.Name == "Templates"
	}
	if !found {
		t.Fatal("Failed did not report the template check")
	}
}

func TestRunAll_IncludesSynthesisWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Synthesis.Endpoint = srv.URL
	for _, r := range RunAll(context.Background(), cfg, nil) {
		if r.Name == "Synthesis" {
			if !r.Passed {
				t.Fatalf("synthesis check failed: %s", r.Detail)
			}
			return
		}
	}
	t.Fatal("expected synthesis check")
}

type stubDiagnoser struct {
	diag queue.Diagnosis
	err  error
}

func (s stubDiagnoser) Diagnose(context.Context) (queue.Diagnosis, error) { return s.diag, s.err }

func TestCheckJobDatabase(t *testing.T) {
	healthy := queue.Diagnosis{Path: "/db", SchemaVersion: 1, Integrity: "ok", Jobs: map[queue.Status]int{queue.StatusQueued: 2}}
	if r := CheckJobDatabase(context.Background(), stubDiagnoser{diag: healthy}); !r.Passed || !strings.Contains(r.Detail, "2 job(s)") {
		t.Fatalf("expected pass, got %+v", r)
	}

	missing := healthy
	missing.MissingTables = []string{"jobs"}
	if r := CheckJobDatabase(context.Background(), stubDiagnoser{diag: missing}); r.Passed || !strings.Contains(r.Detail, "jobs") {
		t.Fatalf("expected missing table failure, got %+v", r)
	}

	corrupt := healthy
	corrupt.Integrity = "row 3 missing from index"
	if r := CheckJobDatabase(context.Background(), stubDiagnoser{diag: corrupt}); r.Passed {
		t.Fatalf("expected integrity failure, got %+v", r)
	}

	if r := CheckJobDatabase(context.Background(), stubDiagnoser{err: errors.New("disk I/O error")}); r.Passed || r.Detail != "disk I/O error" {
		t.Fatalf("expected error detail, got %+v", r)
	}
}
