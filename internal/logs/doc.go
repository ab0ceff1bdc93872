// Package logs reads per-job log files for the CLI.
//
// Tail returns the last lines of a file together with the byte offset to
// resume from, and Follow keeps polling from that offset until the context
// ends. FormatLine renders the JSON records the workers write into a compact
// single-line form for terminals.
package logs
