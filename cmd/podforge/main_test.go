package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const cliTemplate = `
id: weekly
name: Weekly show
segments:
  - kind: main_content
    source: user_provided_per_episode
    order_index: 0
`

func writeCLIConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	templates := filepath.Join(base, "templates")
	if err := os.MkdirAll(templates, 0o755); err != nil {
		t.Fatalf("mkdir templates: %v", err)
	}
	if err := os.WriteFile(filepath.Join(templates, "weekly.yaml"), []byte(cliTemplate), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	body := fmt.Sprintf(`[paths]
state_dir = %q
scratch_dir = %q
artifact_dir = %q
templates_dir = %q
log_dir = %q
lock_dir = %q

[api]
bind = "127.0.0.1:1"
`,
		filepath.Join(base, "state"),
		filepath.Join(base, "scratch"),
		filepath.Join(base, "artifacts"),
		templates,
		filepath.Join(base, "logs"),
		filepath.Join(base, "locks"),
	)
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected output to mention %s, got %q", target, out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}

	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite failed: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfgPath := writeCLIConfig(t)
	out, err := runCLI(t, "--config", cfgPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate failed: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, cfgPath) {
		t.Fatalf("unexpected validate output %q", out)
	}
}

func TestConfigShowPrintsEffectiveTOML(t *testing.T) {
	cfgPath := writeCLIConfig(t)
	out, err := runCLI(t, "--config", cfgPath, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, section := range []string{"[paths]", "[render]", "[api]"} {
		if !strings.Contains(out, section) {
			t.Fatalf("expected %s in output, got %q", section, out)
		}
	}
}

func TestTemplatesListAndShow(t *testing.T) {
	cfgPath := writeCLIConfig(t)

	out, err := runCLI(t, "--config", cfgPath, "templates")
	if err != nil {
		t.Fatalf("templates failed: %v", err)
	}
	if !strings.Contains(out, "weekly") {
		t.Fatalf("expected weekly template in output, got %q", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "templates", "show", "weekly")
	if err != nil {
		t.Fatalf("templates show failed: %v", err)
	}
	if !strings.Contains(out, "main_content") {
		t.Fatalf("expected segment kinds in output, got %q", out)
	}

	if _, err := runCLI(t, "--config", cfgPath, "templates", "show", "missing"); err == nil {
		t.Fatal("expected unknown template to fail")
	}
}

func TestSubmitAndListJobsWithoutDaemon(t *testing.T) {
	cfgPath := writeCLIConfig(t)
	base := filepath.Dir(cfgPath)
	mainAudio := filepath.Join(base, "main.wav")
	transcript := filepath.Join(base, "transcript.json")

	out, err := runCLI(t, "--config", cfgPath, "submit",
		"--episode", "ep-1",
		"--template", "weekly",
		"--transcript", transcript,
		"--main", mainAudio,
	)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !strings.Contains(out, "Queued job") || !strings.Contains(out, "ep-1") {
		t.Fatalf("unexpected submit output %q", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "jobs", "--json")
	if err != nil {
		t.Fatalf("jobs failed: %v", err)
	}
	var jobs []struct {
		ID        string `json:"id"`
		EpisodeID string `json:"episodeId"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("decode jobs output: %v (%q)", err, out)
	}
	if len(jobs) != 1 || jobs[0].EpisodeID != "ep-1" || jobs[0].Status != "queued" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}

	out, err = runCLI(t, "--config", cfgPath, "cancel", jobs[0].ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !strings.Contains(out, jobs[0].ID) {
		t.Fatalf("unexpected cancel output %q", out)
	}
}

func TestSubmitRejectsMalformedOverride(t *testing.T) {
	cfgPath := writeCLIConfig(t)
	_, err := runCLI(t, "--config", cfgPath, "submit",
		"--episode", "ep-1",
		"--template", "weekly",
		"--transcript", "/tmp/t.json",
		"--segment", "intro=/tmp/a.wav",
	)
	if err == nil || !strings.Contains(err.Error(), "index must be an integer") {
		t.Fatalf("expected override error, got %v", err)
	}
}

func TestLogsFormatsJobLog(t *testing.T) {
	cfgPath := writeCLIConfig(t)
	logDir := filepath.Join(filepath.Dir(cfgPath), "logs")

	out, err := runCLI(t, "--config", cfgPath, "logs", "job-1")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if !strings.Contains(out, "No log for job job-1") {
		t.Fatalf("unexpected output %q", out)
	}

	jobDir := filepath.Join(logDir, "jobs")
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	record := `{"ts":"2026-01-02T03:04:05Z","level":"info","msg":"job succeeded","job_id":"job-1"}` + "\n"
	if err := os.WriteFile(filepath.Join(jobDir, "job-1.log"), []byte(record), 0o644); err != nil {
		t.Fatalf("write job log: %v", err)
	}
	out, err = runCLI(t, "--config", cfgPath, "logs", "job-1")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if !strings.Contains(out, "INFO  job succeeded") {
		t.Fatalf("unexpected output %q", out)
	}
}
