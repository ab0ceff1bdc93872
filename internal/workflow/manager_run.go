package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/services"
)

// ErrJobBusy is returned by RunJob when another worker holds the job.
var ErrJobBusy = errors.New("job is locked or claimed by another worker")

// errPickup marks failures to lock or claim a job. The job never started,
// so the next poll would hand the same job back.
var errPickup = errors.New("job pickup failed")

// Start launches the worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	cfg := m.config()
	workers := max(cfg.Workflow.Workers, 1)

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(workers)
	m.mu.Unlock()

	host, _ := os.Hostname()
	for i := range workers {
		worker := fmt.Sprintf("%s-%d-w%d", host, os.Getpid(), i)
		go m.runWorker(runCtx, worker, i == 0)
	}
	m.logger.Info("workflow started",
		logging.Int("workers", workers),
		logging.String(logging.FieldEventType, "workflow_started"),
	)
	return nil
}

// Stop terminates the worker pool and waits for in-flight attempts to return.
// Interrupted jobs stay running until their heartbeat goes stale and are then
// reclaimed.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context, worker string, reclaimer bool) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String("worker", worker))
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		cfg := m.config()
		poll := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second

		if reclaimer {
			timeout := time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second
			if err := m.heartbeat.ReclaimStale(ctx, timeout); err != nil && ctx.Err() == nil {
				logger.Warn("reclaim stale jobs failed; stuck jobs may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check job database access"),
				)
			}
		}

		job, err := m.store.NextQueued(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			logger.Error("failed to fetch next queued job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
			wait(ctx, poll)
			continue
		}
		if job == nil {
			wait(ctx, poll)
			continue
		}

		err = m.execute(ctx, worker, job)
		switch {
		case errors.Is(err, ErrJobBusy):
			wait(ctx, min(poll, 250*time.Millisecond))
		case errors.Is(err, errPickup):
			failures++
			wait(ctx, pickupBackoff(poll, failures))
		default:
			failures = 0
		}
	}
}

// pickupBackoff doubles the poll interval per consecutive pickup failure,
// up to eight intervals.
func pickupBackoff(poll time.Duration, failures int) time.Duration {
	if poll <= 0 {
		poll = time.Second
	}
	return poll << min(max(failures-1, 0), 3)
}

// RunJob processes one job in the caller's goroutine. It is used by the
// foreground CLI and returns the job's final error, if any.
func (m *Manager) RunJob(ctx context.Context, jobID string) error {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "workflow", "run job", "job "+jobID+" not found", nil)
	}
	if job.Status != queue.StatusQueued {
		return services.Wrap(services.ErrValidation, "workflow", "run job",
			fmt.Sprintf("job %s is %s, not queued", jobID, job.Status), nil)
	}
	host, _ := os.Hostname()
	return m.execute(ctx, host+"-"+strconv.Itoa(os.Getpid())+"-fg", job)
}

// execute locks and claims job, then runs it to completion.
func (m *Manager) execute(ctx context.Context, worker string, job *queue.Job) error {
	lock, ok, err := m.locker.TryLock(ctx, job.ID)
	if err != nil {
		m.setLastError(err)
		logging.WarnWithContext(m.logger, "job lock unavailable", "job_lock_failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock backend"),
		)
		return fmt.Errorf("%w: %w", errPickup, err)
	}
	if !ok {
		return ErrJobBusy
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("job lock release failed", logging.String(logging.FieldJobID, job.ID), logging.Error(err))
		}
	}()

	claimed, err := m.store.Claim(ctx, job.ID, worker)
	if err != nil {
		m.setLastError(err)
		return fmt.Errorf("%w: %w", errPickup, err)
	}
	if !claimed {
		return ErrJobBusy
	}
	fresh, err := m.store.GetJob(ctx, job.ID)
	if err != nil || fresh == nil {
		if err == nil {
			err = fmt.Errorf("job %s vanished after claim", job.ID)
		}
		m.setLastError(err)
		return err
	}

	m.trackActive(fresh.ID, worker)
	defer m.untrackActive(fresh.ID)
	return m.process(ctx, worker, fresh, lock)
}

func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
