package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestClientSynthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/synthesize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		var payload synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if payload.Text != "Welcome to the show" || payload.Voice != "narrator" || payload.Format != "wav" {
			t.Errorf("unexpected payload %+v", payload)
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFfakeaudio"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", Endpoint: server.URL, Voice: "narrator", SampleRate: 44100, Channels: 2})
	dest := filepath.Join(t.TempDir(), "intro.wav")
	written, err := client.Synthesize(context.Background(), Request{Text: "Welcome to the show"}, dest)
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if written != int64(len(data)) || string(data) != "RIFFfakeaudio" {
		t.Fatalf("unexpected output %q (%d bytes reported)", data, written)
	}
}

func TestClientSynthesizeStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	dest := filepath.Join(t.TempDir(), "ad.wav")
	_, err := client.Synthesize(context.Background(), Request{Text: "buy now"}, dest)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if !statusErr.Temporary() {
		t.Fatal("503 should be temporary")
	}
	if _, statErr := os.Stat(dest); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("expected no output file, got %v", statErr)
	}
}

func TestClientSynthesizeHonorsDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Config{Endpoint: server.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Synthesize(ctx, Request{Text: "slow"}, filepath.Join(t.TempDir(), "slow.wav"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClientRequiresTextAndEndpoint(t *testing.T) {
	client := NewClient(Config{Endpoint: "http://127.0.0.1:1"})
	if _, err := client.Synthesize(context.Background(), Request{Text: "  "}, filepath.Join(t.TempDir(), "x.wav")); err == nil {
		t.Fatal("expected error for empty text")
	}
	if err := NewClient(Config{}).HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error without endpoint")
	}
}
