package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"podforge/internal/media/pcm"
)

func createFile(t testing.TB, path string) *os.File {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	return f
}

// WriteWAV writes a canonical 16-bit PCM WAV of durationMS where every
// sample holds value. A constant non-zero value reads as steady speech to
// the ducking envelope.
func WriteWAV(t testing.TB, path string, format pcm.Format, durationMS int64, value int16) {
	t.Helper()
	f := createFile(t, path)
	defer f.Close()
	w, err := pcm.NewWriter(f, format)
	if err != nil {
		t.Fatalf("pcm writer: %v", err)
	}
	samples := make([]int16, format.MSToFrames(durationMS)*int64(format.Channels))
	for i := range samples {
		samples[i] = value
	}
	if err := w.Write(samples); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("finalize %s: %v", path, err)
	}
}

// transcriptWord mirrors one entry of the transcript JSON format.
type transcriptWord struct {
	Text    string `json:"text"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
}

// WriteTranscript writes words as a transcript where each word lasts 250ms
// and starts gapMS after the previous one ends.
func WriteTranscript(t testing.TB, path string, gapMS int64, words ...string) {
	t.Helper()
	out := make([]transcriptWord, len(words))
	var cursor int64
	for i, text := range words {
		start := cursor + gapMS
		out[i] = transcriptWord{Text: text, StartMS: start, EndMS: start + 250}
		cursor = start + 250
	}
	f := createFile(t, path)
	defer f.Close()
	if err := json.NewEncoder(f).Encode(out); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
