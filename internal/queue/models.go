package queue

import (
	"strings"
	"time"

	"podforge/internal/blob"
	"podforge/internal/segments"
)

// Status represents the lifecycle of an assembly job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// CancelReason is the error message recorded when a job is cancelled.
const CancelReason = "cancelled by request"

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusSucceeded,
	StatusFailed,
}

// AllStatuses returns every job status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Terminal reports whether the engine will never move a job out of s on its own.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Descriptor is the immutable input of a job.
type Descriptor struct {
	SegmentOverrides segments.Overrides `json:"segment_overrides,omitempty"`
	TranscriptRef    blob.Ref           `json:"transcript_ref"`
	// SourceDurationMS is the submitter's estimate of the main content
	// length. Budgets scale with it.
	SourceDurationMS int64 `json:"source_duration_ms,omitempty"`
}

// SourceDuration returns the estimated source length.
func (d Descriptor) SourceDuration() time.Duration {
	return time.Duration(d.SourceDurationMS) * time.Millisecond
}

// Job is one assembly job row.
type Job struct {
	ID              string     `json:"id"`
	EpisodeID       string     `json:"episode_id"`
	TemplateID      string     `json:"template_id"`
	Plan            string     `json:"plan,omitempty"`
	Status          Status     `json:"status"`
	AttemptCount    int        `json:"attempt_count"`
	MaxAttempts     int        `json:"max_attempts"`
	CancelRequested bool       `json:"cancel_requested"`
	Descriptor      Descriptor `json:"descriptor"`
	ErrorKind       string     `json:"error_kind,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ArtifactRef     blob.Ref   `json:"artifact_ref,omitzero"`
	DurationMS      int64      `json:"duration_ms,omitempty"`
	FileSizeBytes   int64      `json:"file_size_bytes,omitempty"`
	WorkerID        string     `json:"worker_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
}

// AttemptsRemaining reports whether another attempt fits under the cap.
func (j *Job) AttemptsRemaining() bool {
	return j.AttemptCount < j.MaxAttempts
}

// Episode is the consumer-facing record the rendered artifact is linked to.
type Episode struct {
	ID            string    `json:"id"`
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	ArtifactRef   blob.Ref  `json:"artifact_ref,omitzero"`
	DurationMS    int64     `json:"duration_ms"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Outcome records what happened to a detected voice command.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeSuperseded Outcome = "superseded"
)

// AuditEntry is one voice command outcome for upstream review.
type AuditEntry struct {
	ID             int64     `json:"id"`
	JobID          string    `json:"job_id"`
	Attempt        int       `json:"attempt"`
	Kind           string    `json:"kind"`
	TriggerText    string    `json:"trigger_text"`
	TriggerStartMS int64     `json:"trigger_start_ms"`
	TriggerEndMS   int64     `json:"trigger_end_ms"`
	ScopeStartMS   int64     `json:"scope_start_ms"`
	ScopeEndMS     int64     `json:"scope_end_ms"`
	Outcome        Outcome   `json:"outcome"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Submission is a request to assemble one episode.
type Submission struct {
	EpisodeID   string
	TemplateID  string
	Plan        string
	Descriptor  Descriptor
	MaxAttempts int
}

// Completion is the result the orchestrator commits on success.
type Completion struct {
	ArtifactRef   blob.Ref
	DurationMS    int64
	FileSizeBytes int64
}

// ListFilter narrows ListJobs.
type ListFilter struct {
	Statuses  []Status
	EpisodeID string
	Limit     int
}

// Diagnosis describes the job database for preflight and status output.
type Diagnosis struct {
	Path          string         `json:"path"`
	SchemaVersion int            `json:"schema_version"`
	MissingTables []string       `json:"missing_tables,omitempty"`
	Integrity     string         `json:"integrity"`
	Jobs          map[Status]int `json:"jobs"`
}

// Healthy reports whether the schema is current and integrity_check passed.
func (d Diagnosis) Healthy() bool {
	return d.SchemaVersion == schemaVersion && len(d.MissingTables) == 0 && d.Integrity == "ok"
}
