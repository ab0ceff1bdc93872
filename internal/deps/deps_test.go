package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckResolvesPath(t *testing.T) {
	stub := writeStub(t, "ffmpeg")
	status := Check(Requirement{Name: "FFmpeg", Command: "  " + stub + "  "})
	if !status.Available || status.Detail != "" {
		t.Fatalf("expected stub to resolve, got %#v", status)
	}
	if status.Command != stub || status.Path != stub {
		t.Fatalf("command/path = %q/%q, want %q", status.Command, status.Path, stub)
	}
}

func TestCheckReportsMissingAndUnconfigured(t *testing.T) {
	results := CheckBinaries([]Requirement{
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: " "},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Available || r.Detail == "" || r.Path != "" {
			t.Fatalf("expected unavailable with detail, got %#v", r)
		}
	}
	if results[1].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[1].Detail)
	}
}

func TestMediaRequirementsFollowOutputFormat(t *testing.T) {
	wav := MediaRequirements("ffmpeg", "ffprobe", " WAV ")
	if len(wav) != 2 || !wav[0].Optional {
		t.Fatalf("expected ffmpeg optional for wav output, got %#v", wav)
	}
	mp3 := MediaRequirements("ffmpeg", "ffprobe", "mp3")
	if mp3[0].Optional || !mp3[1].Optional {
		t.Fatalf("expected ffmpeg required and ffprobe optional, got %#v", mp3)
	}
}

func TestMissingRequired(t *testing.T) {
	statuses := CheckBinaries(MediaRequirements("clearly-not-present-ffmpeg", "clearly-not-present-ffprobe", "m4a"))
	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0].Name != "FFmpeg" {
		t.Fatalf("expected only ffmpeg reported missing, got %#v", missing)
	}
	if len(MissingRequired(CheckBinaries(MediaRequirements("clearly-not-present-ffmpeg", "x", "wav")))) != 0 {
		t.Fatal("wav output should not require ffmpeg")
	}
}
