package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes an assembly job in a transport-friendly format.
type Job struct {
	ID               string            `json:"id"`
	EpisodeID        string            `json:"episodeId"`
	TemplateID       string            `json:"templateId"`
	Plan             string            `json:"plan,omitempty"`
	Status           string            `json:"status"`
	AttemptCount     int               `json:"attemptCount"`
	MaxAttempts      int               `json:"maxAttempts"`
	CancelRequested  bool              `json:"cancelRequested"`
	ErrorKind        string            `json:"errorKind,omitempty"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
	ArtifactRef      string            `json:"artifactRef,omitempty"`
	DurationMS       int64             `json:"durationMs,omitempty"`
	FileSizeBytes    int64             `json:"fileSizeBytes,omitempty"`
	TranscriptRef    string            `json:"transcriptRef"`
	SegmentOverrides map[string]string `json:"segmentOverrides,omitempty"`
	SourceDurationMS int64             `json:"sourceDurationMs,omitempty"`
	WorkerID         string            `json:"workerId,omitempty"`
	CreatedAt        string            `json:"createdAt,omitempty"`
	UpdatedAt        string            `json:"updatedAt,omitempty"`
	StartedAt        string            `json:"startedAt,omitempty"`
	FinishedAt       string            `json:"finishedAt,omitempty"`
	LastHeartbeat    string            `json:"lastHeartbeat,omitempty"`
}

// AuditEntry records what happened to one detected voice command.
type AuditEntry struct {
	Attempt        int    `json:"attempt"`
	Kind           string `json:"kind"`
	TriggerText    string `json:"triggerText"`
	TriggerStartMS int64  `json:"triggerStartMs"`
	TriggerEndMS   int64  `json:"triggerEndMs"`
	ScopeStartMS   int64  `json:"scopeStartMs"`
	ScopeEndMS     int64  `json:"scopeEndMs"`
	Outcome        string `json:"outcome"`
	Note           string `json:"note,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

// Episode is the consumer-facing view of an episode and its current render.
type Episode struct {
	ID            string `json:"id"`
	CurrentJobID  string `json:"currentJobId,omitempty"`
	ArtifactRef   string `json:"artifactRef,omitempty"`
	DurationMS    int64  `json:"durationMs"`
	FileSizeBytes int64  `json:"fileSizeBytes"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running    bool              `json:"running"`
	Workers    int               `json:"workers"`
	ActiveJobs map[string]string `json:"activeJobs,omitempty"`
	QueueStats map[string]int    `json:"queueStats"`
	LastError  string            `json:"lastError,omitempty"`
	LastJob    *Job              `json:"lastJob,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Path        string `json:"path,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"databasePath"`
	LockFilePath string             `json:"lockFilePath"`
	LockBackend  string             `json:"lockBackend"`
	APIAddress   string             `json:"apiAddress,omitempty"`
	ScratchDirs  int                `json:"scratchDirs"`
	ScratchBytes int64              `json:"scratchBytes"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// SubmitRequest is the body of POST /api/jobs. SegmentOverrides maps a
// template order index to a blob reference string.
type SubmitRequest struct {
	EpisodeID        string            `json:"episodeId"`
	TemplateID       string            `json:"templateId"`
	Plan             string            `json:"plan,omitempty"`
	TranscriptRef    string            `json:"transcriptRef"`
	SegmentOverrides map[string]string `json:"segmentOverrides"`
	SourceDurationMS int64             `json:"sourceDurationMs,omitempty"`
	MaxAttempts      int               `json:"maxAttempts,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// AuditResponse lists the audit log of one job.
type AuditResponse struct {
	JobID   string       `json:"jobId"`
	Entries []AuditEntry `json:"entries"`
}

// EpisodeResponse wraps a single episode.
type EpisodeResponse struct {
	Episode Episode `json:"episode"`
}

// RetryResponse reports how many jobs were requeued.
type RetryResponse struct {
	Requeued int64 `json:"requeued"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
