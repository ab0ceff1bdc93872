// Package logging builds the slog loggers used by the daemon, CLI, and stages.
//
// Console output is a compact single-line format (colored on a TTY) with the
// job and stage pulled into the header; JSON output is available for log
// shippers. When a log directory is configured every record is also written as
// JSON to a size-rotated file. Helpers derive standard fields (job_id, stage,
// attempt, correlation_id) from context and enforce event_type/error_hint on
// warnings and errors.
package logging
