package testsupport

import (
	"context"
	"testing"

	"podforge/internal/blob"
	"podforge/internal/config"
	"podforge/internal/queue"
	"podforge/internal/segments"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// BasicTemplate returns a template with an optional intro file followed by a
// main content slot supplied per episode.
func BasicTemplate(id, introPath string) *segments.Template {
	tmpl := &segments.Template{ID: id, Name: "Test show"}
	next := 0
	if introPath != "" {
		tmpl.Segments = append(tmpl.Segments, segments.Segment{
			Kind:       segments.KindIntro,
			Source:     segments.SourceUploadedFile,
			AudioRef:   blob.LocalRef(introPath),
			OrderIndex: next,
		})
		next++
	}
	tmpl.Segments = append(tmpl.Segments, segments.Segment{
		Kind:       segments.KindMainContent,
		Source:     segments.SourceUserProvided,
		OrderIndex: next,
	})
	return tmpl
}

// SubmitJob queues a job for episodeID whose main content is mainPath.
func SubmitJob(t testing.TB, store *queue.Store, tmpl *segments.Template, episodeID, mainPath, transcriptPath string, maxAttempts int) *queue.Job {
	t.Helper()

	main, ok := tmpl.MainContentIndex()
	if !ok {
		t.Fatalf("template %s has no main content", tmpl.ID)
	}
	job, err := store.Submit(context.Background(), queue.Submission{
		EpisodeID:  episodeID,
		TemplateID: tmpl.ID,
		Descriptor: queue.Descriptor{
			SegmentOverrides: segments.Overrides{main: blob.LocalRef(mainPath)},
			TranscriptRef:    blob.LocalRef(transcriptPath),
		},
		MaxAttempts: maxAttempts,
	}, tmpl)
	if err != nil {
		t.Fatalf("store.Submit: %v", err)
	}
	return job
}
