// Package transcript holds word-level transcripts produced by the external
// transcription service. Transcripts are validated on load and immutable
// afterwards; the voice-command detector and renderer read them concurrently.
package transcript
