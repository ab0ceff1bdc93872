package api

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"podforge/internal/blob"
	"podforge/internal/deps"
	"podforge/internal/queue"
	"podforge/internal/segments"
	"podforge/internal/services"
	"podforge/internal/workflow"
)

// FromJob converts a job record to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:               job.ID,
		EpisodeID:        job.EpisodeID,
		TemplateID:       job.TemplateID,
		Plan:             job.Plan,
		Status:           string(job.Status),
		AttemptCount:     job.AttemptCount,
		MaxAttempts:      job.MaxAttempts,
		CancelRequested:  job.CancelRequested,
		ErrorKind:        job.ErrorKind,
		ErrorMessage:     job.ErrorMessage,
		DurationMS:       job.DurationMS,
		FileSizeBytes:    job.FileSizeBytes,
		TranscriptRef:    job.Descriptor.TranscriptRef.String(),
		SourceDurationMS: job.Descriptor.SourceDurationMS,
		WorkerID:         job.WorkerID,
		CreatedAt:        formatTime(job.CreatedAt),
		UpdatedAt:        formatTime(job.UpdatedAt),
		StartedAt:        formatTimePtr(job.StartedAt),
		FinishedAt:       formatTimePtr(job.FinishedAt),
		LastHeartbeat:    formatTimePtr(job.LastHeartbeat),
	}
	if !job.ArtifactRef.IsZero() {
		dto.ArtifactRef = job.ArtifactRef.String()
	}
	if len(job.Descriptor.SegmentOverrides) > 0 {
		dto.SegmentOverrides = make(map[string]string, len(job.Descriptor.SegmentOverrides))
		for index, ref := range job.Descriptor.SegmentOverrides {
			dto.SegmentOverrides[strconv.Itoa(index)] = ref.String()
		}
	}
	return dto
}

// FromJobs converts a slice of job records into API DTOs.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromAuditEntries converts audit records into API DTOs.
func FromAuditEntries(entries []queue.AuditEntry) []AuditEntry {
	out := make([]AuditEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntry{
			Attempt:        e.Attempt,
			Kind:           e.Kind,
			TriggerText:    e.TriggerText,
			TriggerStartMS: e.TriggerStartMS,
			TriggerEndMS:   e.TriggerEndMS,
			ScopeStartMS:   e.ScopeStartMS,
			ScopeEndMS:     e.ScopeEndMS,
			Outcome:        string(e.Outcome),
			Note:           e.Note,
			CreatedAt:      formatTime(e.CreatedAt),
		})
	}
	return out
}

// FromEpisode converts an episode record.
func FromEpisode(episode *queue.Episode) Episode {
	if episode == nil {
		return Episode{}
	}
	dto := Episode{
		ID:            episode.ID,
		CurrentJobID:  episode.CurrentJobID,
		DurationMS:    episode.DurationMS,
		FileSizeBytes: episode.FileSizeBytes,
		UpdatedAt:     formatTime(episode.UpdatedAt),
	}
	if !episode.ArtifactRef.IsZero() {
		dto.ArtifactRef = episode.ArtifactRef.String()
	}
	return dto
}

// FromStatusSummary converts the workflow status summary to the API view.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:    summary.Running,
		Workers:    summary.Workers,
		ActiveJobs: maps.Clone(summary.ActiveJobs),
		QueueStats: MergeQueueStats(summary.QueueStats),
		LastError:  summary.LastError,
	}
	if summary.LastJob != nil {
		job := FromJob(summary.LastJob)
		status.LastJob = &job
	}
	return status
}

// FromDependencies converts binary checks to their API representation.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Path:        s.Path,
			Detail:      s.Detail,
		})
	}
	return out
}

// MergeQueueStats returns counts for every status, zero-filled.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

// ToSubmission validates req and converts it into a queue submission.
func ToSubmission(req SubmitRequest) (queue.Submission, error) {
	sub := queue.Submission{
		EpisodeID:   strings.TrimSpace(req.EpisodeID),
		TemplateID:  strings.TrimSpace(req.TemplateID),
		Plan:        strings.TrimSpace(req.Plan),
		MaxAttempts: req.MaxAttempts,
	}
	transcript, err := blob.ParseRef(req.TranscriptRef)
	if err != nil {
		return queue.Submission{}, services.Wrap(services.ErrValidation, "api", "submit", "transcriptRef", err)
	}
	sub.Descriptor.TranscriptRef = transcript
	sub.Descriptor.SourceDurationMS = req.SourceDurationMS
	if len(req.SegmentOverrides) > 0 {
		sub.Descriptor.SegmentOverrides = make(segments.Overrides, len(req.SegmentOverrides))
		for key, value := range req.SegmentOverrides {
			index, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				return queue.Submission{}, services.Wrap(services.ErrValidation, "api", "submit",
					fmt.Sprintf("segment override key %q is not an order index", key), nil)
			}
			ref, err := blob.ParseRef(value)
			if err != nil {
				return queue.Submission{}, services.Wrap(services.ErrValidation, "api", "submit",
					fmt.Sprintf("segment override %d", index), err)
			}
			sub.Descriptor.SegmentOverrides[index] = ref
		}
	}
	return sub, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
