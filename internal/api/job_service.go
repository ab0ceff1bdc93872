package api

import (
	"context"
	"strings"

	"podforge/internal/queue"
	"podforge/internal/segments"
	"podforge/internal/services"
)

// JobStore abstracts the job store operations the API exposes.
type JobStore interface {
	Submit(ctx context.Context, sub queue.Submission, tmpl *segments.Template) (*queue.Job, error)
	GetJob(ctx context.Context, id string) (*queue.Job, error)
	ListJobs(ctx context.Context, filter queue.ListFilter) ([]*queue.Job, error)
	AuditEntries(ctx context.Context, jobID string) ([]queue.AuditEntry, error)
	GetEpisode(ctx context.Context, id string) (*queue.Episode, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	RequestCancel(ctx context.Context, id string) (*queue.Job, error)
	RetryFailed(ctx context.Context, ids ...string) (int64, error)
}

// TemplateSource loads templates for submission validation.
type TemplateSource interface {
	Load(id string) (*segments.Template, error)
}

// ListQuery filters job listings.
type ListQuery struct {
	Statuses  []string
	EpisodeID string
	Limit     int
}

// JobService exposes job operations returning API DTOs.
type JobService struct {
	store           JobStore
	templates       TemplateSource
	defaultAttempts int
}

// NewJobService constructs a JobService. defaultAttempts applies to
// submissions that do not set their own cap.
func NewJobService(store JobStore, templates TemplateSource, defaultAttempts int) *JobService {
	return &JobService{store: store, templates: templates, defaultAttempts: defaultAttempts}
}

// Submit validates req against its template and queues a job.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	sub, err := ToSubmission(req)
	if err != nil {
		return nil, err
	}
	if sub.TemplateID == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "submit", "templateId is required", nil)
	}
	if sub.MaxAttempts <= 0 {
		sub.MaxAttempts = s.defaultAttempts
	}
	tmpl, err := s.templates.Load(sub.TemplateID)
	if err != nil {
		return nil, err
	}
	job, err := s.store.Submit(ctx, sub, tmpl)
	if err != nil {
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}

// List returns jobs newest first.
func (s *JobService) List(ctx context.Context, query ListQuery) ([]Job, error) {
	filter := queue.ListFilter{EpisodeID: query.EpisodeID, Limit: query.Limit}
	for _, value := range query.Statuses {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "api", "list", "unknown status "+value, nil)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	jobs, err := s.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Describe fetches a single job. It returns nil, nil when unknown.
func (s *JobService) Describe(ctx context.Context, id string) (*Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}

// Audit returns the voice command audit log of a job.
func (s *JobService) Audit(ctx context.Context, id string) ([]AuditEntry, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, jobNotFound(id)
	}
	entries, err := s.store.AuditEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromAuditEntries(entries), nil
}

// Episode fetches an episode. It returns nil, nil when unknown.
func (s *JobService) Episode(ctx context.Context, id string) (*Episode, error) {
	episode, err := s.store.GetEpisode(ctx, id)
	if err != nil || episode == nil {
		return nil, err
	}
	dto := FromEpisode(episode)
	return &dto, nil
}

// Stats returns job counts keyed by status string.
func (s *JobService) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// Cancel requests cancellation and returns the job afterwards.
func (s *JobService) Cancel(ctx context.Context, id string) (*Job, error) {
	job, err := s.store.RequestCancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, jobNotFound(id)
	}
	dto := FromJob(job)
	return &dto, nil
}

// Retry requeues failed jobs. With no ids every failed job is retried.
func (s *JobService) Retry(ctx context.Context, ids []string) (int64, error) {
	return s.store.RetryFailed(ctx, ids...)
}

func jobNotFound(id string) error {
	return services.Wrap(services.ErrNotFound, "api", "job", "job "+id+" not found", nil)
}
