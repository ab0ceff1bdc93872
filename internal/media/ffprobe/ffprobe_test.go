package ffprobe

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestParseAudio(t *testing.T) {
	raw := []byte(`{
		"streams": [{"codec_name": "mp3", "sample_rate": "44100", "channels": 2, "duration": "10.0"}],
		"format": {"duration": "123.4567", "format_name": "mp3"}
	}`)
	audio, err := parseAudio(raw)
	if err != nil {
		t.Fatalf("parseAudio: %v", err)
	}
	want := Audio{Codec: "mp3", SampleRate: 44100, Channels: 2, DurationMS: 123457, Container: "mp3"}
	if audio != want {
		t.Fatalf("got %+v, want %+v", audio, want)
	}
	if !audio.HasAudio() {
		t.Fatal("expected audio stream")
	}
}

func TestParseAudioFallsBackToStreamDuration(t *testing.T) {
	raw := []byte(`{"streams": [{"codec_name": "opus", "sample_rate": "n/a", "channels": 1, "duration": "2.5"}], "format": {"duration": "N/A"}}`)
	audio, err := parseAudio(raw)
	if err != nil {
		t.Fatalf("parseAudio: %v", err)
	}
	if audio.DurationMS != 2500 {
		t.Fatalf("duration = %d, want 2500", audio.DurationMS)
	}
	if audio.SampleRate != 0 {
		t.Fatalf("sample rate = %d, want 0", audio.SampleRate)
	}
}

func TestParseAudioWithoutStreams(t *testing.T) {
	audio, err := parseAudio([]byte(`{"streams": [], "format": {"duration": "-1"}}`))
	if err != nil {
		t.Fatalf("parseAudio: %v", err)
	}
	if audio.HasAudio() || audio.DurationMS != 0 {
		t.Fatalf("unexpected audio %+v", audio)
	}
	if _, err := parseAudio([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestProbeAudioRunsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	dir := t.TempDir()
	stub := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\ncat <<'JSON'\n" +
		`{"streams":[{"codec_name":"aac","sample_rate":"48000","channels":2}],"format":{"duration":"2.500000","format_name":"mov,mp4,m4a"}}` +
		"\nJSON\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	audio, err := ProbeAudio(context.Background(), stub, filepath.Join(dir, "episode.m4a"))
	if err != nil {
		t.Fatalf("ProbeAudio: %v", err)
	}
	if audio.DurationMS != 2500 || audio.Codec != "aac" || audio.Channels != 2 {
		t.Fatalf("unexpected audio %+v", audio)
	}
}

func TestProbeAudioRejectsEmptyPath(t *testing.T) {
	if _, err := ProbeAudio(context.Background(), "ffprobe", " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
