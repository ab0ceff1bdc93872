package voicecmd_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"podforge/internal/config"
	"podforge/internal/services"
	"podforge/internal/transcript"
	"podforge/internal/voicecmd"
)

// spoken describes a word and the silence before it.
type spoken struct {
	text  string
	gapMS int64
}

func buildTranscript(t *testing.T, script []spoken) *transcript.Transcript {
	t.Helper()
	words := make([]transcript.Word, 0, len(script))
	var cursor int64
	for _, s := range script {
		cursor += s.gapMS
		words = append(words, transcript.Word{Text: s.text, StartMS: cursor, EndMS: cursor + 250, SpeakerID: "host", Confidence: 0.9})
		cursor += 250
	}
	tr, err := transcript.New(words)
	if err != nil {
		t.Fatalf("transcript.New failed: %v", err)
	}
	return tr
}

func words(texts ...string) []spoken {
	out := make([]spoken, 0, len(texts))
	for _, text := range texts {
		out = append(out, spoken{text: text, gapMS: 100})
	}
	return out
}

func newDetector(t *testing.T) *voicecmd.Detector {
	t.Helper()
	d, err := voicecmd.NewDetector(voicecmd.ConfigFrom(config.Default().VoiceCommands), nil)
	if err != nil {
		t.Fatalf("NewDetector failed: %v", err)
	}
	return d
}

func TestRollbackScopeStartsAtMostRecentPause(t *testing.T) {
	script := make([]spoken, 0, 43)
	for i := 0; i < 42; i++ {
		script = append(script, spoken{text: fmt.Sprintf("word%d", i), gapMS: 100})
	}
	script[10].gapMS = 900 // an older pause that must not be chosen
	script[41].gapMS = 600 // pause between word 40 and word 41
	script = append(script, spoken{text: "flubber", gapMS: 600})
	tr := buildTranscript(t, script)

	result := newDetector(t).Detect(tr)
	if len(result.Directives) != 1 {
		t.Fatalf("expected one directive, got %+v", result.Directives)
	}
	got := result.Directives[0]
	if got.Kind != voicecmd.KindRollbackRestart {
		t.Fatalf("unexpected kind %s", got.Kind)
	}
	if got.ScopeStartMS != tr.Word(40).EndMS {
		t.Fatalf("scope start = %d, want word 40 end %d", got.ScopeStartMS, tr.Word(40).EndMS)
	}
	if got.ScopeEndMS != tr.Word(42).EndMS || got.TriggerStartMS != tr.Word(42).StartMS {
		t.Fatalf("unexpected trigger/scope end: %+v", got)
	}
	if got.ScopeStartMS > got.TriggerStartMS {
		t.Fatalf("scope start %d after trigger start %d", got.ScopeStartMS, got.TriggerStartMS)
	}
	if got.TriggerText != "flubber" {
		t.Fatalf("trigger text = %q", got.TriggerText)
	}
}

func TestRollbackWithoutPauseReachesRecordingStart(t *testing.T) {
	tr := buildTranscript(t, words("so", "the", "thing", "is", "Flub!"))
	result := newDetector(t).Detect(tr)
	if len(result.Directives) != 1 {
		t.Fatalf("expected one directive, got %+v", result.Directives)
	}
	if result.Directives[0].ScopeStartMS != 0 {
		t.Fatalf("expected scope start 0, got %d", result.Directives[0].ScopeStartMS)
	}
}

func TestRollbackDoesNotCrossEarlierTrigger(t *testing.T) {
	tr := buildTranscript(t, words("one", "flubber", "two", "three", "flubber"))
	result := newDetector(t).Detect(tr)
	if len(result.Directives) != 2 {
		t.Fatalf("expected both rollbacks kept, got %+v (superseded %+v)", result.Directives, result.Superseded)
	}
	second := result.Directives[1]
	if second.ScopeStartMS != tr.Word(1).EndMS {
		t.Fatalf("second scope start = %d, want end of first trigger %d", second.ScopeStartMS, tr.Word(1).EndMS)
	}
}

func TestNoteRemovalScopesToStopPhrase(t *testing.T) {
	tr := buildTranscript(t, words("welcome", "back", "note", "to", "editor", "fix", "the", "levels", "end", "note", "anyway"))
	result := newDetector(t).Detect(tr)
	if len(result.Directives) != 1 {
		t.Fatalf("expected one directive, got %+v", result.Directives)
	}
	got := result.Directives[0]
	if got.Kind != voicecmd.KindNoteRemoval {
		t.Fatalf("unexpected kind %s", got.Kind)
	}
	if got.TriggerText != "note to editor" {
		t.Fatalf("trigger text = %q", got.TriggerText)
	}
	if got.NoteText != "fix the levels" {
		t.Fatalf("note text = %q", got.NoteText)
	}
	if got.ScopeStartMS != tr.Word(4).EndMS || got.ScopeEndMS != tr.Word(9).EndMS {
		t.Fatalf("unexpected scope %d-%d", got.ScopeStartMS, got.ScopeEndMS)
	}
	if got.CutStartMS() != tr.Word(2).StartMS || got.CutEndMS() != tr.Word(9).EndMS {
		t.Fatalf("unexpected cut range %d-%d", got.CutStartMS(), got.CutEndMS())
	}
}

func TestNoteWithoutStopPhraseIsUnresolved(t *testing.T) {
	script := words("intern", "remember", "to", "trim", "this")
	script = append(script, spoken{text: "end", gapMS: 61_000}, spoken{text: "note", gapMS: 100})
	tr := buildTranscript(t, script)

	result := newDetector(t).Detect(tr)
	if len(result.Directives) != 0 {
		t.Fatalf("expected no directives, got %+v", result.Directives)
	}
	if len(result.Unresolved) != 1 {
		t.Fatalf("expected one unresolved note, got %+v", result.Unresolved)
	}
	err := result.Unresolved[0].Err()
	if !errors.Is(err, services.ErrUnresolvedDirective) {
		t.Fatalf("expected unresolved marker, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("unresolved directives are not retryable")
	}
}

func TestOverlapKeepsLaterTrigger(t *testing.T) {
	// The rollback inside the note overlaps it; the rollback is the later
	// trigger and wins.
	tr := buildTranscript(t, words("intern", "cut", "flubber", "this", "end", "note"))
	result := newDetector(t).Detect(tr)
	if len(result.Directives) != 1 || result.Directives[0].Kind != voicecmd.KindRollbackRestart {
		t.Fatalf("expected rollback to win, got %+v", result.Directives)
	}
	if len(result.Superseded) != 1 || result.Superseded[0].Kind != voicecmd.KindNoteRemoval {
		t.Fatalf("expected note superseded, got %+v", result.Superseded)
	}
}

func TestDirectivesSortedAndDisjoint(t *testing.T) {
	script := words("a", "b", "flubber", "c")
	script = append(script, spoken{text: "d", gapMS: 800}, spoken{text: "e", gapMS: 100})
	script = append(script, words("flub", "note", "to", "editor", "x", "back", "to", "show", "f")...)
	tr := buildTranscript(t, script)

	result := newDetector(t).Detect(tr)
	if len(result.Directives) != 3 {
		t.Fatalf("expected three directives, got %+v", result.Directives)
	}
	for i := 1; i < len(result.Directives); i++ {
		prev, cur := result.Directives[i-1], result.Directives[i]
		if prev.ScopeStartMS > cur.ScopeStartMS {
			t.Fatalf("directives not sorted: %+v", result.Directives)
		}
		if prev.CutEndMS() > cur.CutStartMS() {
			t.Fatalf("directives overlap: %+v then %+v", prev, cur)
		}
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	script := words("intro", "flubber", "again", "intern", "drop", "end", "note", "flub")
	tr := buildTranscript(t, script)
	d := newDetector(t)
	first := d.Detect(tr)
	for i := 0; i < 5; i++ {
		if again := d.Detect(tr); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, first, again)
		}
	}
}

func TestNewDetectorRejectsNoteTriggersWithoutStops(t *testing.T) {
	_, err := voicecmd.NewDetector(voicecmd.Config{
		NoteTriggers:     []string{"intern"},
		SilenceThreshold: 450 * time.Millisecond,
		NoteWindow:       time.Minute,
	}, nil)
	if err == nil {
		t.Fatal("expected error for note triggers without stop phrases")
	}
}
