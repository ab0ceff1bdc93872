package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotRunning is returned when a running-only update finds the job in
// another state or claimed by a different worker.
var ErrNotRunning = errors.New("job is not running for this worker")

// Claim atomically moves a queued job to running for worker and starts its
// first attempt. It reports false when another worker got there first or the
// job is no longer queued.
func (s *Store) Claim(ctx context.Context, id, worker string) (bool, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, attempt_count = attempt_count + 1, worker_id = ?,
             started_at = COALESCE(started_at, ?), finished_at = NULL,
             last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ? AND attempt_count < max_attempts`,
		StatusRunning, worker, now, now, now, id, StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return n == 1, nil
}

// BeginRetry starts another attempt of a running job after a retryable
// failure, recording that failure. It reports false when the attempt cap is
// reached.
func (s *Store) BeginRetry(ctx context.Context, id, worker, errorKind, message string) (bool, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET attempt_count = attempt_count + 1, error_kind = ?, error_message = ?,
             last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ? AND worker_id = ? AND attempt_count < max_attempts`,
		nullableString(errorKind), nullableString(message), now, now, id, StatusRunning, worker,
	)
	if err != nil {
		return false, fmt.Errorf("begin retry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("begin retry: %w", err)
	}
	return n == 1, nil
}

// UpdateHeartbeat refreshes the liveness timestamp of a running job. It
// returns ErrNotRunning once the job has been reclaimed or finished.
func (s *Store) UpdateHeartbeat(ctx context.Context, id, worker string) error {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ? AND worker_id = ?`,
		now, now, id, StatusRunning, worker,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotRunning
	}
	return nil
}

// RequestCancel flags a job for cancellation. A queued job fails at once;
// a running job is flagged and its worker stops at the next stage boundary.
// It returns the job after the change, or nil when the job does not exist.
func (s *Store) RequestCancel(ctx context.Context, id string) (*Job, error) {
	now := s.timestamp()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs
             SET status = ?, cancel_requested = 1, error_kind = 'cancelled', error_message = ?,
                 finished_at = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusFailed, CancelReason, now, now, id, StatusQueued,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ? AND status = ?`,
			now, id, StatusRunning,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("request cancel: %w", err)
	}
	return s.GetJob(ctx, id)
}

// CancelRequested reports whether cancellation was requested for a job.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(orBackground(ctx), `SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}

// MarkFailed moves a queued or running job to failed with a stable error kind.
func (s *Store) MarkFailed(ctx context.Context, id, errorKind, message string) error {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, error_kind = ?, error_message = ?, finished_at = ?, updated_at = ?,
             worker_id = NULL, last_heartbeat = NULL
         WHERE id = ? AND status IN (?, ?)`,
		StatusFailed, nullableString(errorKind), nullableString(message), now, now,
		id, StatusQueued, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotRunning
	}
	return nil
}

// CompleteJob marks a running job succeeded and links the artifact to its
// episode in one transaction.
func (s *Store) CompleteJob(ctx context.Context, id, worker string, done Completion) error {
	if err := done.ArtifactRef.Validate(); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	now := s.timestamp()
	ref := nullableRef(done.ArtifactRef)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var episodeID string
		if err := tx.QueryRowContext(ctx,
			`SELECT episode_id FROM jobs WHERE id = ? AND status = ? AND worker_id = ?`,
			id, StatusRunning, worker,
		).Scan(&episodeID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotRunning
			}
			return fmt.Errorf("load job: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs
             SET status = ?, artifact_ref = ?, duration_ms = ?, file_size_bytes = ?,
                 error_kind = NULL, error_message = NULL, finished_at = ?, updated_at = ?,
                 worker_id = NULL, last_heartbeat = NULL
             WHERE id = ?`,
			StatusSucceeded, ref, done.DurationMS, done.FileSizeBytes, now, now, id,
		); err != nil {
			return fmt.Errorf("mark succeeded: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE episodes
             SET current_job_id = ?, artifact_ref = ?, duration_ms = ?, file_size_bytes = ?, updated_at = ?
             WHERE id = ?`,
			id, ref, done.DurationMS, done.FileSizeBytes, now, episodeID,
		); err != nil {
			return fmt.Errorf("link artifact: %w", err)
		}
		return nil
	})
}

// RetryFailed requeues failed jobs with a fresh attempt count and points
// their episodes back at them. With no ids every failed job is requeued.
// Jobs whose episode already has another active job are left alone.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	now := s.timestamp()
	query := `UPDATE jobs
        SET status = ?, attempt_count = 0, cancel_requested = 0, error_kind = NULL, error_message = NULL,
            started_at = NULL, finished_at = NULL, worker_id = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status = ?
          AND NOT EXISTS (SELECT 1 FROM jobs AS other
                          WHERE other.episode_id = jobs.episode_id AND other.status IN (?, ?))`
	args := []any{StatusQueued, now, StatusFailed, StatusQueued, StatusRunning}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}

	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE episodes
             SET current_job_id = (SELECT id FROM jobs WHERE jobs.episode_id = episodes.id AND jobs.status = ?
                                   ORDER BY jobs.created_at DESC LIMIT 1),
                 updated_at = ?
             WHERE EXISTS (SELECT 1 FROM jobs WHERE jobs.episode_id = episodes.id AND jobs.status = ?)`,
			StatusQueued, now, StatusQueued,
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return affected, nil
}

// ReclaimStale recovers running jobs whose heartbeat is older than cutoff.
// Jobs with attempts left return to queued; the rest fail as abandoned, or
// as cancelled when cancellation had been requested.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (requeued, abandoned int64, err error) {
	now := s.timestamp()
	stale := formatTime(cutoff)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs
             SET status = ?, error_kind = 'cancelled', error_message = ?, finished_at = ?, updated_at = ?,
                 worker_id = NULL, last_heartbeat = NULL
             WHERE status = ? AND cancel_requested = 1 AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
			StatusFailed, CancelReason, now, now, StatusRunning, stale,
		)
		if err != nil {
			return err
		}
		cancelled, err := res.RowsAffected()
		if err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE jobs
             SET status = ?, worker_id = NULL, last_heartbeat = NULL, updated_at = ?
             WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ? AND attempt_count < max_attempts`,
			StatusQueued, now, StatusRunning, stale,
		)
		if err != nil {
			return err
		}
		if requeued, err = res.RowsAffected(); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE jobs
             SET status = ?, error_kind = 'abandoned', error_message = 'worker stopped heartbeating', finished_at = ?,
                 updated_at = ?, worker_id = NULL, last_heartbeat = NULL
             WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
			StatusFailed, now, now, StatusRunning, stale,
		)
		if err != nil {
			return err
		}
		failed, err := res.RowsAffected()
		abandoned = failed + cancelled
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return requeued, abandoned, nil
}
