package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"podforge/internal/blob"
)

const jobColumns = "id, episode_id, template_id, plan, status, attempt_count, max_attempts, cancel_requested, descriptor_json, error_kind, error_message, artifact_ref, duration_ms, file_size_bytes, worker_id, created_at, updated_at, started_at, finished_at, last_heartbeat"

const episodeColumns = "id, current_job_id, artifact_ref, duration_ms, file_size_bytes, created_at, updated_at"

const auditColumns = "id, job_id, attempt, kind, trigger_text, trigger_start_ms, trigger_end_ms, scope_start_ms, scope_end_ms, outcome, note, created_at"

// timestampLayout is fixed width so stored timestamps compare correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job             Job
		plan            sql.NullString
		status          string
		cancelRequested int
		descriptorJSON  string
		errorKind       sql.NullString
		errorMessage    sql.NullString
		artifactRef     sql.NullString
		durationMS      sql.NullInt64
		fileSize        sql.NullInt64
		workerID        sql.NullString
		createdRaw      string
		updatedRaw      string
		startedRaw      sql.NullString
		finishedRaw     sql.NullString
		heartbeatRaw    sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.EpisodeID,
		&job.TemplateID,
		&plan,
		&status,
		&job.AttemptCount,
		&job.MaxAttempts,
		&cancelRequested,
		&descriptorJSON,
		&errorKind,
		&errorMessage,
		&artifactRef,
		&durationMS,
		&fileSize,
		&workerID,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job.Plan = plan.String
	job.Status = Status(status)
	job.CancelRequested = cancelRequested != 0
	job.ErrorKind = errorKind.String
	job.ErrorMessage = errorMessage.String
	job.DurationMS = durationMS.Int64
	job.FileSizeBytes = fileSize.Int64
	job.WorkerID = workerID.String
	if err := json.Unmarshal([]byte(descriptorJSON), &job.Descriptor); err != nil {
		return nil, fmt.Errorf("decode descriptor for job %s: %w", job.ID, err)
	}
	ref, err := parseNullableRef(artifactRef)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	job.ArtifactRef = ref
	job.CreatedAt, _ = parseTimeString(createdRaw)
	job.UpdatedAt, _ = parseTimeString(updatedRaw)
	job.StartedAt = parseNullableTime(startedRaw)
	job.FinishedAt = parseNullableTime(finishedRaw)
	job.LastHeartbeat = parseNullableTime(heartbeatRaw)
	return &job, nil
}

func scanEpisode(scanner rowScanner) (*Episode, error) {
	var (
		episode     Episode
		currentJob  sql.NullString
		artifactRef sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&episode.ID,
		&currentJob,
		&artifactRef,
		&episode.DurationMS,
		&episode.FileSizeBytes,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	episode.CurrentJobID = currentJob.String
	ref, err := parseNullableRef(artifactRef)
	if err != nil {
		return nil, fmt.Errorf("episode %s: %w", episode.ID, err)
	}
	episode.ArtifactRef = ref
	episode.CreatedAt, _ = parseTimeString(createdRaw)
	episode.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &episode, nil
}

func scanAudit(scanner rowScanner) (AuditEntry, error) {
	var (
		entry       AuditEntry
		triggerText sql.NullString
		outcome     string
		note        sql.NullString
		createdRaw  string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.JobID,
		&entry.Attempt,
		&entry.Kind,
		&triggerText,
		&entry.TriggerStartMS,
		&entry.TriggerEndMS,
		&entry.ScopeStartMS,
		&entry.ScopeEndMS,
		&outcome,
		&note,
		&createdRaw,
	); err != nil {
		return AuditEntry{}, err
	}
	entry.TriggerText = triggerText.String
	entry.Outcome = Outcome(outcome)
	entry.Note = note.String
	entry.CreatedAt, _ = parseTimeString(createdRaw)
	return entry, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableRef(ref blob.Ref) any {
	if ref.IsZero() {
		return nil
	}
	return ref.String()
}

func parseNullableRef(value sql.NullString) (blob.Ref, error) {
	if !value.Valid || value.String == "" {
		return blob.Ref{}, nil
	}
	ref, err := blob.ParseRef(value.String)
	if err != nil {
		return blob.Ref{}, fmt.Errorf("parse artifact ref: %w", err)
	}
	return ref, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
