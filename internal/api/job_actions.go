package api

import (
	"context"

	"podforge/internal/queue"
)

// JobActionService captures the operations needed by per-job retry and
// cancel workflows. JobService and Client both satisfy it.
type JobActionService interface {
	Describe(ctx context.Context, id string) (*Job, error)
	Retry(ctx context.Context, ids []string) (int64, error)
	Cancel(ctx context.Context, id string) (*Job, error)
}

type RetryJobOutcome string

const (
	RetryJobRequeued  RetryJobOutcome = "requeued"
	RetryJobNotFound  RetryJobOutcome = "not_found"
	RetryJobNotFailed RetryJobOutcome = "not_failed"
	RetryJobBlocked   RetryJobOutcome = "episode_busy"
)

type RetryJobResult struct {
	ID      string          `json:"id"`
	Outcome RetryJobOutcome `json:"outcome"`
}

type RetryJobsResult struct {
	RequeuedCount int64            `json:"requeuedCount"`
	Jobs          []RetryJobResult `json:"jobs"`
}

type CancelJobOutcome string

const (
	CancelJobFailed           CancelJobOutcome = "cancelled"
	CancelJobRequested        CancelJobOutcome = "cancel_requested"
	CancelJobNotFound         CancelJobOutcome = "not_found"
	CancelJobAlreadySucceeded CancelJobOutcome = "already_succeeded"
	CancelJobAlreadyFailed    CancelJobOutcome = "already_failed"
)

type CancelJobResult struct {
	ID          string           `json:"id"`
	Outcome     CancelJobOutcome `json:"outcome"`
	PriorStatus string           `json:"prior_status,omitempty"`
}

// RetryFailedJobs retries each failed job individually and reports why the
// others were skipped.
func RetryFailedJobs(ctx context.Context, service JobActionService, ids []string) (RetryJobsResult, error) {
	result := RetryJobsResult{Jobs: make([]RetryJobResult, 0, len(ids))}
	for _, id := range ids {
		job, err := service.Describe(ctx, id)
		if err != nil {
			return RetryJobsResult{}, err
		}
		if job == nil {
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobNotFound})
			continue
		}
		if status, ok := queue.ParseStatus(job.Status); !ok || status != queue.StatusFailed {
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobNotFailed})
			continue
		}
		updated, err := service.Retry(ctx, []string{id})
		if err != nil {
			return RetryJobsResult{}, err
		}
		if updated > 0 {
			result.RequeuedCount += updated
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobRequeued})
			continue
		}
		// Failed but not requeued: the episode already has an active job.
		result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobBlocked})
	}
	return result, nil
}

// CancelJobs cancels each job unless it already finished.
func CancelJobs(ctx context.Context, service JobActionService, ids []string) ([]CancelJobResult, error) {
	results := make([]CancelJobResult, 0, len(ids))
	for _, id := range ids {
		job, err := service.Describe(ctx, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			results = append(results, CancelJobResult{ID: id, Outcome: CancelJobNotFound})
			continue
		}
		prior := job.Status
		switch queue.Status(prior) {
		case queue.StatusSucceeded:
			results = append(results, CancelJobResult{ID: id, Outcome: CancelJobAlreadySucceeded, PriorStatus: prior})
			continue
		case queue.StatusFailed:
			results = append(results, CancelJobResult{ID: id, Outcome: CancelJobAlreadyFailed, PriorStatus: prior})
			continue
		}
		after, err := service.Cancel(ctx, id)
		if err != nil {
			return nil, err
		}
		outcome := CancelJobRequested
		if after != nil {
			switch queue.Status(after.Status) {
			case queue.StatusFailed:
				outcome = CancelJobFailed
			case queue.StatusSucceeded:
				outcome = CancelJobAlreadySucceeded
			}
		}
		results = append(results, CancelJobResult{ID: id, Outcome: outcome, PriorStatus: prior})
	}
	return results, nil
}
