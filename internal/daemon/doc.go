// Package daemon owns the podforged process lifecycle.
//
// It takes a flock-based instance lock, runs preflight checks, sweeps
// orphaned scratch directories, and then starts the workflow worker pool and
// the status API. A janitor loop keeps sweeping scratch space on the
// configured retention while the daemon runs.
//
// Orchestration of individual jobs lives in the workflow package; the daemon
// only handles startup, shutdown, and status reporting.
package daemon
