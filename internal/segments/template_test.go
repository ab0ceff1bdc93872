package segments_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"podforge/internal/blob"
	"podforge/internal/segments"
	"podforge/internal/services"
)

const weeklyTemplate = `
id: weekly
name: Weekly show
segments:
  - kind: outro
    source: uploaded_file
    audio_ref: s3://media/shared/outro.wav
    order_index: 2
  - kind: intro
    source: synthesized_speech
    script: Welcome back to the weekly show.
    voice: narrator
    order_index: 0
  - kind: main_content
    source: user_provided_per_episode
    order_index: 1
music_rules:
  - music_ref: /srv/music/bed.wav
    apply_to_segment_kinds: [intro, outro]
    fade_in_ms: 500
    fade_out_ms: 1500
    volume_level: 6.5
    loop: true
`

func writeTemplate(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
}

func TestParseTemplate(t *testing.T) {
	tmpl, err := segments.Parse([]byte(weeklyTemplate))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if tmpl.ID != "weekly" || len(tmpl.Segments) != 3 {
		t.Fatalf("unexpected template %+v", tmpl)
	}
	for i, seg := range tmpl.Segments {
		if seg.OrderIndex != i {
			t.Fatalf("segments not sorted by order_index: %+v", tmpl.Segments)
		}
	}
	outro := tmpl.Segments[2]
	if outro.AudioRef != blob.ObjectRef("media", "shared/outro.wav") {
		t.Fatalf("unexpected outro ref %+v", outro.AudioRef)
	}
	if len(tmpl.MusicRules) != 1 {
		t.Fatalf("expected one music rule, got %d", len(tmpl.MusicRules))
	}
	rule := tmpl.MusicRules[0]
	if rule.MusicRef != blob.LocalRef("/srv/music/bed.wav") || rule.VolumeLevel != 6.5 || !rule.Loop {
		t.Fatalf("unexpected music rule %+v", rule)
	}
	if idx, ok := tmpl.MainContentIndex(); !ok || idx != 1 {
		t.Fatalf("MainContentIndex = %d, %v", idx, ok)
	}
}

func TestParseTemplateRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no main content": `
id: x
segments:
  - {kind: intro, source: uploaded_file, audio_ref: /a.wav, order_index: 0}
`,
		"duplicate order": `
id: x
segments:
  - {kind: main_content, source: user_provided_per_episode, order_index: 0}
  - {kind: outro, source: uploaded_file, audio_ref: /a.wav, order_index: 0}
`,
		"unknown kind": `
id: x
segments:
  - {kind: credits, source: uploaded_file, order_index: 0}
`,
		"script missing": `
id: x
segments:
  - {kind: main_content, source: user_provided_per_episode, order_index: 0}
  - {kind: ad, source: synthesized_speech, order_index: 1}
`,
		"bad volume": `
id: x
segments:
  - {kind: main_content, source: user_provided_per_episode, order_index: 0}
music_rules:
  - {music_ref: /m.wav, volume_level: 12}
`,
		"malformed": "id: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := segments.Parse([]byte(body))
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLibraryLoadAndList(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "weekly.yaml", weeklyTemplate)
	writeTemplate(t, dir, "broken.yaml", "id: broken\nsegments: []\n")
	writeTemplate(t, dir, "renamed.yaml", weeklyTemplate)

	lib := segments.NewLibrary(dir)
	if _, err := lib.Load("weekly"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := lib.Load("missing"); services.Kind(err) != services.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if _, err := lib.Load("../etc/passwd"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for path-like id, got %v", err)
	}
	if _, err := lib.Load("renamed"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected id mismatch error, got %v", err)
	}

	templates, problems := lib.List()
	if len(templates) != 1 || templates[0].ID != "weekly" {
		t.Fatalf("unexpected templates %+v", templates)
	}
	if len(problems) != 2 {
		t.Fatalf("expected two problems, got %v", problems)
	}
}
