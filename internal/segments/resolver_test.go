package segments_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"podforge/internal/blob"
	"podforge/internal/segments"
	"podforge/internal/services"
	"podforge/internal/services/synthesis"
)

type fakeSynth struct {
	calls []synthesis.Request
	err   error
}

func (f *fakeSynth) Synthesize(_ context.Context, req synthesis.Request, dest string) (int64, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return 0, f.err
	}
	return 4, os.WriteFile(dest, []byte("RIFF"), 0o644)
}

func weekly(t *testing.T) *segments.Template {
	t.Helper()
	tmpl, err := segments.Parse([]byte(weeklyTemplate))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return tmpl
}

func TestResolveAppliesOverridesAndSynthesis(t *testing.T) {
	synth := &fakeSynth{}
	resolver := segments.NewResolver(segments.Options{Synthesizer: synth})
	main := blob.ObjectRef("uploads", "ep-7/main.wav")
	scratch := t.TempDir()

	resolved, err := resolver.Resolve(context.Background(), segments.Request{
		Template:   weekly(t),
		Overrides:  segments.Overrides{1: main},
		ScratchDir: scratch,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(resolved) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(resolved))
	}
	if resolved[0].Segment.Kind != segments.KindIntro || resolved[0].Ref.Path != filepath.Join(scratch, "synth-000.wav") {
		t.Fatalf("unexpected intro %+v", resolved[0])
	}
	if resolved[1].Ref != main {
		t.Fatalf("main content override not applied: %+v", resolved[1])
	}
	if resolved[2].Ref != blob.ObjectRef("media", "shared/outro.wav") {
		t.Fatalf("outro should keep template audio: %+v", resolved[2])
	}
	if len(synth.calls) != 1 || synth.calls[0].Voice != "narrator" {
		t.Fatalf("unexpected synthesis calls %+v", synth.calls)
	}
}

func TestResolveOverrideBeatsSynthesis(t *testing.T) {
	synth := &fakeSynth{}
	resolver := segments.NewResolver(segments.Options{Synthesizer: synth})
	custom := blob.LocalRef("/uploads/custom-intro.wav")
	resolved, err := resolver.Resolve(context.Background(), segments.Request{
		Template:  weekly(t),
		Overrides: segments.Overrides{0: custom, 1: blob.LocalRef("/uploads/main.wav")},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved[0].Ref != custom || len(synth.calls) != 0 {
		t.Fatalf("override should win without synthesis: %+v calls=%d", resolved[0], len(synth.calls))
	}
}

func TestResolveMissingMainContent(t *testing.T) {
	withTemplateAudio := weekly(t)
	for i := range withTemplateAudio.Segments {
		if withTemplateAudio.Segments[i].Kind == segments.KindMainContent {
			withTemplateAudio.Segments[i].AudioRef = blob.LocalRef("/srv/shows/placeholder.wav")
		}
	}
	tests := []struct {
		name string
		tmpl *segments.Template
	}{
		{name: "no audio anywhere", tmpl: weekly(t)},
		{name: "template audio only", tmpl: withTemplateAudio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := &fakeSynth{}
			resolver := segments.NewResolver(segments.Options{Synthesizer: synth})
			_, err := resolver.Resolve(context.Background(), segments.Request{Template: tt.tmpl, ScratchDir: t.TempDir()})
			if services.Kind(err) != services.KindMissingContent {
				t.Fatalf("expected missing_content, got %v", err)
			}
			if services.Retryable(err) {
				t.Fatal("missing content must not be retried")
			}
			if len(synth.calls) != 0 {
				t.Fatalf("no synthesis expected before the override check, got %d calls", len(synth.calls))
			}
		})
	}
}

func TestCheckOverridesRejectsUndeclaredIndex(t *testing.T) {
	err := segments.CheckOverrides(weekly(t), segments.Overrides{
		1: blob.LocalRef("/a.wav"),
		9: blob.LocalRef("/b.wav"),
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveSkipsEmptyOptionalSegments(t *testing.T) {
	tmpl, err := segments.Parse([]byte(`
id: bare
segments:
  - {kind: ad, source: user_provided_per_episode, order_index: 0}
  - {kind: main_content, source: user_provided_per_episode, order_index: 1}
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	resolved, err := segments.NewResolver(segments.Options{}).Resolve(context.Background(), segments.Request{
		Template:  tmpl,
		Overrides: segments.Overrides{1: blob.LocalRef("/main.wav")},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(resolved) != 1 || resolved[0].Segment.Kind != segments.KindMainContent {
		t.Fatalf("expected only main content, got %+v", resolved)
	}
}

func TestResolveWithoutSynthesizerIsConfigurationError(t *testing.T) {
	_, err := segments.NewResolver(segments.Options{}).Resolve(context.Background(), segments.Request{
		Template:   weekly(t),
		Overrides:  segments.Overrides{1: blob.LocalRef("/main.wav")},
		ScratchDir: t.TempDir(),
	})
	if services.Kind(err) != services.KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestResolveSynthesisTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	resolver := segments.NewResolver(segments.Options{
		Synthesizer:      synthesis.NewClient(synthesis.Config{Endpoint: server.URL}),
		SynthesisTimeout: 50 * time.Millisecond,
	})
	_, err := resolver.Resolve(context.Background(), segments.Request{
		Template:   weekly(t),
		Overrides:  segments.Overrides{1: blob.LocalRef("/main.wav")},
		ScratchDir: t.TempDir(),
	})
	if services.Kind(err) != services.KindSynthesisTimeout {
		t.Fatalf("expected synthesis_timeout, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("synthesis timeout should be retryable")
	}
}

func TestResolveSynthesisServiceErrors(t *testing.T) {
	cases := []struct {
		status int
		kind   string
	}{
		{http.StatusServiceUnavailable, services.KindTransientIO},
		{http.StatusUnauthorized, services.KindConfiguration},
		{http.StatusBadRequest, services.KindInvalidInput},
	}
	for _, tc := range cases {
		synth := &fakeSynth{err: &synthesis.StatusError{StatusCode: tc.status}}
		_, err := segments.NewResolver(segments.Options{Synthesizer: synth}).Resolve(context.Background(), segments.Request{
			Template:   weekly(t),
			Overrides:  segments.Overrides{1: blob.LocalRef("/main.wav")},
			ScratchDir: t.TempDir(),
		})
		if services.Kind(err) != tc.kind {
			t.Fatalf("status %d: expected %s, got %v", tc.status, tc.kind, err)
		}
	}
}
