package transcript_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podforge/internal/blob"
	"podforge/internal/services"
	"podforge/internal/transcript"
)

func TestNewValidatesWordOrdering(t *testing.T) {
	cases := []struct {
		name  string
		words []transcript.Word
		ok    bool
	}{
		{
			name:  "empty",
			words: nil,
			ok:    true,
		},
		{
			name: "ordered",
			words: []transcript.Word{
				{Text: "hello", StartMS: 0, EndMS: 300, SpeakerID: "a"},
				{Text: "there", StartMS: 350, EndMS: 600, SpeakerID: "a"},
			},
			ok: true,
		},
		{
			name: "cross speaker overlap allowed",
			words: []transcript.Word{
				{Text: "yes", StartMS: 0, EndMS: 500, SpeakerID: "a"},
				{Text: "right", StartMS: 200, EndMS: 400, SpeakerID: "b"},
			},
			ok: true,
		},
		{
			name:  "negative start",
			words: []transcript.Word{{Text: "x", StartMS: -1, EndMS: 10}},
		},
		{
			name:  "end before start",
			words: []transcript.Word{{Text: "x", StartMS: 100, EndMS: 50}},
		},
		{
			name: "decreasing start",
			words: []transcript.Word{
				{Text: "a", StartMS: 500, EndMS: 600, SpeakerID: "a"},
				{Text: "b", StartMS: 100, EndMS: 200, SpeakerID: "b"},
			},
		},
		{
			name: "same speaker overlap",
			words: []transcript.Word{
				{Text: "a", StartMS: 0, EndMS: 500, SpeakerID: "a"},
				{Text: "b", StartMS: 400, EndMS: 700, SpeakerID: "a"},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := transcript.New(tc.words)
			if tc.ok && err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, services.ErrValidation) {
					t.Fatalf("expected validation marker, got %v", err)
				}
			}
		})
	}
}

func TestTranscriptIsImmutable(t *testing.T) {
	words := []transcript.Word{{Text: "one", StartMS: 0, EndMS: 100}}
	tr, err := transcript.New(words)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	words[0].Text = "mutated"
	copied := tr.Words()
	copied[0].Text = "also mutated"
	if tr.Word(0).Text != "one" {
		t.Fatalf("transcript changed through caller slice: %q", tr.Word(0).Text)
	}
}

func TestDecodeAcceptsBothForms(t *testing.T) {
	docs := []string{
		`{"words":[{"text":"Hi","start_ms":0,"end_ms":200,"speaker_id":"s1","confidence":0.9},{"text":"all","start_ms":250,"end_ms":500,"speaker_id":"s1","confidence":0.8}]}`,
		`[{"text":"Hi","start_ms":0,"end_ms":200,"speaker_id":"s1"},{"text":"all","start_ms":250,"end_ms":500,"speaker_id":"s1"}]`,
	}
	for _, doc := range docs {
		tr, err := transcript.Decode(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if tr.Len() != 2 || tr.DurationMS() != 500 {
			t.Fatalf("unexpected transcript len=%d duration=%d", tr.Len(), tr.DurationMS())
		}
		if got := tr.Text(0, 2); got != "Hi all" {
			t.Fatalf("Text = %q", got)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := transcript.Decode(strings.NewReader(`{"words": [`))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeToken(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Flubber,", "flubber"},
		{"FLUB!", "flub"},
		{"“Intern”", "intern"},
		{"...", ""},
		{"ｆｌｕｂ", "flub"},
		{"don't", "dont"},
	}
	for _, tc := range cases {
		if got := transcript.NormalizeToken(tc.in); got != tc.want {
			t.Fatalf("NormalizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePhrase(t *testing.T) {
	got := transcript.NormalizePhrase("  Note to   Editor! ")
	want := []string{"note", "to", "editor"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("NormalizePhrase = %v, want %v", got, want)
	}
}

type staticResolver struct {
	result blob.Result
}

func (s staticResolver) Resolve(context.Context, blob.Ref) blob.Result {
	return s.result
}

func TestStoreLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.json")
	if err := os.WriteFile(path, []byte(`[{"text":"ok","start_ms":0,"end_ms":10}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	store := transcript.NewStore(staticResolver{result: blob.Result{Path: path}})
	tr, err := store.Load(context.Background(), blob.LocalRef(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if tr.Len() != 1 {
		t.Fatalf("expected 1 word, got %d", tr.Len())
	}

	missing := transcript.NewStore(staticResolver{result: blob.Result{Err: &blob.ResolveError{Kind: blob.KindNotFound}}})
	if _, err := missing.Load(context.Background(), blob.LocalRef(path)); services.Kind(err) != services.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if _, err := store.Load(context.Background(), blob.Ref{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty ref, got %v", err)
	}
}
