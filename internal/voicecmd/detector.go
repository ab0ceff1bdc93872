package voicecmd

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"podforge/internal/config"
	"podforge/internal/logging"
	"podforge/internal/transcript"
)

// Config holds the phrase sets and thresholds for one detection pass.
type Config struct {
	RollbackTriggers []string
	NoteTriggers     []string
	NoteStopPhrases  []string
	// SilenceThreshold is the minimum inter-word gap treated as a natural pause.
	SilenceThreshold time.Duration
	// NoteWindow bounds how far after a note trigger the stop phrase may start.
	NoteWindow time.Duration
}

// ConfigFrom builds a detector configuration from the voice command settings.
func ConfigFrom(vc config.VoiceCommands) Config {
	return Config{
		RollbackTriggers: vc.RollbackRestart.Triggers,
		NoteTriggers:     vc.NoteRemoval.Triggers,
		NoteStopPhrases:  vc.NoteRemoval.StopPhrases,
		SilenceThreshold: time.Duration(vc.SilenceThresholdMillis) * time.Millisecond,
		NoteWindow:       time.Duration(vc.NoteWindowSeconds) * time.Second,
	}
}

type phrase struct {
	kind   Kind
	tokens []string
}

// Detector scans transcripts for voice commands. It holds no per-transcript
// state and may be shared between goroutines.
type Detector struct {
	triggers    []phrase
	stops       [][]string
	thresholdMS int64
	windowMS    int64
	logger      *slog.Logger
}

// NewDetector compiles cfg. Note triggers require at least one stop phrase.
func NewDetector(cfg Config, logger *slog.Logger) (*Detector, error) {
	if cfg.SilenceThreshold <= 0 {
		return nil, errors.New("voicecmd: silence threshold must be positive")
	}
	if cfg.NoteWindow <= 0 {
		return nil, errors.New("voicecmd: note window must be positive")
	}
	d := &Detector{
		thresholdMS: cfg.SilenceThreshold.Milliseconds(),
		windowMS:    cfg.NoteWindow.Milliseconds(),
		logger:      logging.NewComponentLogger(logger, "voicecmd"),
	}
	for _, text := range cfg.RollbackTriggers {
		if tokens := transcript.NormalizePhrase(text); len(tokens) > 0 {
			d.triggers = append(d.triggers, phrase{kind: KindRollbackRestart, tokens: tokens})
		}
	}
	for _, text := range cfg.NoteTriggers {
		if tokens := transcript.NormalizePhrase(text); len(tokens) > 0 {
			d.triggers = append(d.triggers, phrase{kind: KindNoteRemoval, tokens: tokens})
		}
	}
	for _, text := range cfg.NoteStopPhrases {
		if tokens := transcript.NormalizePhrase(text); len(tokens) > 0 {
			d.stops = append(d.stops, tokens)
		}
	}
	if len(d.stops) == 0 {
		for _, p := range d.triggers {
			if p.kind == KindNoteRemoval {
				return nil, fmt.Errorf("voicecmd: note trigger %q has no stop phrase", strings.Join(p.tokens, " "))
			}
		}
	}
	// Longest phrases first so "note to editor" is preferred over a shorter
	// trigger sharing its first word.
	sort.SliceStable(d.triggers, func(i, j int) bool {
		return len(d.triggers[i].tokens) > len(d.triggers[j].tokens)
	})
	sort.SliceStable(d.stops, func(i, j int) bool {
		return len(d.stops[i]) > len(d.stops[j])
	})
	return d, nil
}

// token is a normalized transcript word that still knows its word index.
type token struct {
	text string
	word int
}

type match struct {
	kind  Kind
	first int // index into tokens
	last  int
}

// Detect scans tr and returns the edit directives it contains. The result is
// a pure function of tr and the detector configuration.
func (d *Detector) Detect(tr *transcript.Transcript) Result {
	words := tr.Words()
	tokens := make([]token, 0, len(words))
	for i, w := range words {
		if text := transcript.NormalizeToken(w.Text); text != "" {
			tokens = append(tokens, token{text: text, word: i})
		}
	}

	var (
		candidates []Directive
		result     Result
		floorWord  = -1 // last word consumed by an earlier trigger
	)
	for pos := 0; pos < len(tokens); {
		m, ok := d.matchTrigger(tokens, pos)
		if !ok {
			pos++
			continue
		}
		first := words[tokens[m.first].word]
		last := words[tokens[m.last].word]
		triggerText := tr.Text(tokens[m.first].word, tokens[m.last].word+1)

		switch m.kind {
		case KindRollbackRestart:
			candidates = append(candidates, Directive{
				Kind:           KindRollbackRestart,
				TriggerStartMS: first.StartMS,
				TriggerEndMS:   last.EndMS,
				ScopeStartMS:   min(d.rollbackScopeStart(words, tokens[m.first].word, floorWord), first.StartMS),
				ScopeEndMS:     last.EndMS,
				TriggerText:    triggerText,
			})
		case KindNoteRemoval:
			stopFirst, stopLast, found := d.findStop(tokens, m.last+1, last.EndMS, words)
			if !found {
				unresolved := Unresolved{
					Kind:           KindNoteRemoval,
					TriggerStartMS: first.StartMS,
					TriggerEndMS:   last.EndMS,
					TriggerText:    triggerText,
					Reason:         fmt.Sprintf("no stop phrase within %ds", d.windowMS/1000),
				}
				result.Unresolved = append(result.Unresolved, unresolved)
				logging.WarnWithContext(d.logger, "voice command unresolved", "voicecmd_unresolved",
					logging.String("trigger", triggerText),
					logging.Int64("trigger_start_ms", first.StartMS),
					logging.String(logging.FieldErrorHint, "say a stop phrase after the note"),
					logging.String(logging.FieldImpact, "note left in the recording"),
				)
				break
			}
			stopEnd := words[tokens[stopLast].word].EndMS
			candidates = append(candidates, Directive{
				Kind:           KindNoteRemoval,
				TriggerStartMS: first.StartMS,
				TriggerEndMS:   last.EndMS,
				ScopeStartMS:   last.EndMS,
				ScopeEndMS:     stopEnd,
				TriggerText:    triggerText,
				NoteText:       tr.Text(tokens[m.last].word+1, tokens[stopFirst].word),
			})
		}
		floorWord = tokens[m.last].word
		pos = m.last + 1
	}

	result.Directives, result.Superseded = resolveOverlaps(candidates)
	return result
}

func (d *Detector) matchTrigger(tokens []token, pos int) (match, bool) {
	for _, p := range d.triggers {
		if hasPrefixAt(tokens, pos, p.tokens) {
			return match{kind: p.kind, first: pos, last: pos + len(p.tokens) - 1}, true
		}
	}
	return match{}, false
}

// findStop returns the token span of the first stop phrase that starts within
// the note window after afterMS.
func (d *Detector) findStop(tokens []token, from int, afterMS int64, words []transcript.Word) (int, int, bool) {
	for pos := from; pos < len(tokens); pos++ {
		if words[tokens[pos].word].StartMS-afterMS > d.windowMS {
			return 0, 0, false
		}
		for _, stop := range d.stops {
			if hasPrefixAt(tokens, pos, stop) {
				return pos, pos + len(stop) - 1, true
			}
		}
	}
	return 0, 0, false
}

// rollbackScopeStart walks back from the trigger to the most recent natural
// pause. The gap directly before the trigger is the speaker hesitating before
// the command and does not count. The search never crosses an earlier
// trigger; with no pause the scope reaches the start of the recording.
func (d *Detector) rollbackScopeStart(words []transcript.Word, triggerWord, floorWord int) int64 {
	for j := triggerWord - 2; j >= 0 && j >= floorWord; j-- {
		if words[j+1].StartMS-words[j].EndMS > d.thresholdMS {
			return words[j].EndMS
		}
	}
	if floorWord >= 0 {
		return words[floorWord].EndMS
	}
	return 0
}

// resolveOverlaps keeps the most recent instruction when cut ranges collide.
func resolveOverlaps(candidates []Directive) ([]Directive, []Directive) {
	ordered := make([]Directive, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TriggerStartMS > ordered[j].TriggerStartMS
	})

	var kept, superseded []Directive
	for _, cand := range ordered {
		clash := false
		for _, k := range kept {
			if cand.overlaps(k) {
				clash = true
				break
			}
		}
		if clash {
			superseded = append(superseded, cand)
			continue
		}
		kept = append(kept, cand)
	}
	sortByScope(kept)
	sortByScope(superseded)
	return kept, superseded
}

func sortByScope(ds []Directive) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].ScopeStartMS != ds[j].ScopeStartMS {
			return ds[i].ScopeStartMS < ds[j].ScopeStartMS
		}
		return ds[i].TriggerStartMS < ds[j].TriggerStartMS
	})
}

func hasPrefixAt(tokens []token, pos int, want []string) bool {
	if pos+len(want) > len(tokens) {
		return false
	}
	for i, w := range want {
		if tokens[pos+i].text != w {
			return false
		}
	}
	return true
}
