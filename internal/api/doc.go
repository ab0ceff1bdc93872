// Package api defines the wire-format types of the podforge status API and
// serves them over HTTP. It translates queue and workflow models into
// transport-friendly DTOs so the CLI and external collaborators never couple
// to internal types.
//
// # Key Types
//
// Job, AuditEntry, Episode: transport views of the job store records.
//
// WorkflowStatus and DaemonStatus: worker pool state, queue counts, and
// dependency availability.
//
// JobService: store-backed operations returning DTOs. Client: the same
// operations over HTTP against a running daemon.
//
// Server: gorilla/mux routes under /api with optional bearer-token auth.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Enums (job status, error kind, audit outcome)
// are exposed as lowercase strings. Timestamps use RFC3339 with milliseconds.
// Blob references are rendered with their canonical string form.
package api
