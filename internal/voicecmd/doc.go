// Package voicecmd finds spoken editing commands in a word-level transcript.
//
// Two families are recognized. A rollback trigger ("flubber") removes the
// take the speaker just flubbed, reaching back to the previous natural pause.
// A note trigger ("note to editor") removes everything up to the matching
// stop phrase ("end note"); notes without a stop phrase inside the window are
// reported as unresolved and left in place. When cut ranges overlap the later
// trigger wins.
package voicecmd
