package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"podforge/internal/segments"
	"podforge/internal/services"
)

// ErrActiveJob is returned when an episode already has a queued or running job.
var ErrActiveJob = errors.New("episode already has an active job")

// Submit validates sub against tmpl and queues a new job. The episode row is
// created on first submission and always points at the newest job.
func (s *Store) Submit(ctx context.Context, sub Submission, tmpl *segments.Template) (*Job, error) {
	sub.EpisodeID = strings.TrimSpace(sub.EpisodeID)
	sub.TemplateID = strings.TrimSpace(sub.TemplateID)
	if sub.EpisodeID == "" || sub.TemplateID == "" {
		return nil, services.Wrap(services.ErrValidation, "submit", "validate", "episode_id and template_id are required", nil)
	}
	if tmpl == nil || tmpl.ID != sub.TemplateID {
		return nil, services.Wrap(services.ErrValidation, "submit", "validate", "template "+sub.TemplateID+" not loaded", nil)
	}
	if err := sub.Descriptor.TranscriptRef.Validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "submit", "validate", "transcript_ref", err)
	}
	if sub.Descriptor.SourceDurationMS < 0 {
		return nil, services.Wrap(services.ErrValidation, "submit", "validate", "source_duration_ms must be non-negative", nil)
	}
	if err := segments.CheckOverrides(tmpl, sub.Descriptor.SegmentOverrides); err != nil {
		return nil, err
	}
	if sub.MaxAttempts <= 0 {
		sub.MaxAttempts = 1
	}
	descriptor, err := json.Marshal(sub.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("marshal descriptor: %w", err)
	}

	id := uuid.NewString()
	now := s.timestamp()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM jobs WHERE episode_id = ? AND status IN (?, ?)`,
			sub.EpisodeID, StatusQueued, StatusRunning,
		).Scan(&active); err != nil {
			return fmt.Errorf("check active jobs: %w", err)
		}
		if active > 0 {
			return services.Wrap(services.ErrValidation, "submit", "queue", sub.EpisodeID, ErrActiveJob)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, episode_id, template_id, plan, status, attempt_count, max_attempts,
                cancel_requested, descriptor_json, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, 0, ?, 0, ?, ?, ?)`,
			id, sub.EpisodeID, sub.TemplateID, nullableString(sub.Plan), StatusQueued,
			sub.MaxAttempts, string(descriptor), now, now,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO episodes (id, current_job_id, created_at, updated_at) VALUES (?, ?, ?, ?)
             ON CONFLICT(id) DO UPDATE SET current_job_id = excluded.current_job_id, updated_at = excluded.updated_at`,
			sub.EpisodeID, id, now, now,
		); err != nil {
			return fmt.Errorf("link episode: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by id. It returns nil, nil when no such job exists.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(orBackground(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs matching filter, newest first.
func (s *Store) ListJobs(ctx context.Context, filter ListFilter) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if episode := strings.TrimSpace(filter.EpisodeID); episode != "" {
		clauses = append(clauses, "episode_id = ?")
		args = append(args, episode)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(orBackground(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// NextQueued returns the oldest queued job, or nil when the queue is empty.
func (s *Store) NextQueued(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(orBackground(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		StatusQueued,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued job: %w", err)
	}
	return job, nil
}

// GetEpisode fetches an episode by id. It returns nil, nil when unknown.
func (s *Store) GetEpisode(ctx context.Context, id string) (*Episode, error) {
	row := s.db.QueryRowContext(orBackground(ctx), `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	episode, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return episode, nil
}
