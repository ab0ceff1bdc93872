package voicecmd

import "podforge/internal/services"

// Kind identifies what a spoken command asks the editor to do.
type Kind string

const (
	KindRollbackRestart Kind = "rollback_restart"
	KindNoteRemoval     Kind = "note_removal"
)

// Directive is a time-ranged edit derived from a voice command. Directives
// are transient: they are re-derived from the transcript on every attempt.
type Directive struct {
	Kind           Kind   `json:"kind"`
	TriggerStartMS int64  `json:"trigger_start_ms"`
	TriggerEndMS   int64  `json:"trigger_end_ms"`
	ScopeStartMS   int64  `json:"scope_start_ms"`
	ScopeEndMS     int64  `json:"scope_end_ms"`
	TriggerText    string `json:"trigger_text"`
	NoteText       string `json:"note_text,omitempty"`
}

// CutStartMS is the first millisecond removed from the recording.
func (d Directive) CutStartMS() int64 {
	return min(d.TriggerStartMS, d.ScopeStartMS)
}

// CutEndMS is the end of the removed range, exclusive.
func (d Directive) CutEndMS() int64 {
	return max(d.TriggerEndMS, d.ScopeEndMS)
}

func (d Directive) overlaps(other Directive) bool {
	return d.CutStartMS() < other.CutEndMS() && other.CutStartMS() < d.CutEndMS()
}

// Unresolved is a note trigger whose stop phrase never arrived within the
// window. It is dropped from the edit list and reported for audit.
type Unresolved struct {
	Kind           Kind   `json:"kind"`
	TriggerStartMS int64  `json:"trigger_start_ms"`
	TriggerEndMS   int64  `json:"trigger_end_ms"`
	TriggerText    string `json:"trigger_text"`
	Reason         string `json:"reason"`
}

// Err reports the unresolved command as a non-fatal classified error.
func (u Unresolved) Err() error {
	return services.Wrap(services.ErrUnresolvedDirective, "voice_commands", string(u.Kind), u.TriggerText+": "+u.Reason, nil)
}

// Result is the full outcome of one detection pass.
type Result struct {
	// Directives are non-overlapping and sorted by ScopeStartMS.
	Directives []Directive
	Unresolved []Unresolved
	// Superseded lost an overlap to a later trigger.
	Superseded []Directive
}
