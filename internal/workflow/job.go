package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"podforge/internal/joblock"
	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/services"
)

// process runs attempts of a claimed job until it succeeds or fails for good.
func (m *Manager) process(ctx context.Context, worker string, job *queue.Job, lock joblock.Lock) error {
	cfg := m.config()
	jobCtx := services.WithJob(ctx, job.ID, job.EpisodeID, uuid.NewString())

	logger, closeLog := m.jobLogger(jobCtx, cfg, job, worker)
	defer closeLog()
	defer os.RemoveAll(filepath.Join(cfg.Paths.ScratchDir, job.ID))

	source := m.measureSource(jobCtx, cfg, job, logger)
	budget := cfg.BudgetFor(job.Plan).For(source)
	started := m.clock.Now()
	budgetErr := services.Wrap(services.ErrBudgetExceeded, "workflow", "budget",
		fmt.Sprintf("job exceeded its %s budget", budget), nil)
	budgetCtx, cancelBudget := context.WithTimeoutCause(jobCtx, budget, budgetErr)
	defer cancelBudget()
	runCtx, cancelRun := context.WithCancelCause(budgetCtx)
	defer cancelRun(nil)

	hbCtx, stopHeartbeat := context.WithCancel(runCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job, worker, lock,
		time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second, cancelRun)
	defer func() {
		stopHeartbeat()
		hbWG.Wait()
	}()

	logging.WithContext(jobCtx, logger).Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("template_id", job.TemplateID),
		logging.Duration("source_duration", source),
		logging.Duration("budget", budget),
		logging.Int("max_attempts", job.MaxAttempts),
	)

	attempt := job.AttemptCount
	for {
		run := &attemptRun{
			job:      job,
			worker:   worker,
			attempt:  attempt,
			cfg:      cfg,
			started:  started,
			deadline: started.Add(budget),
			budget:   budget,
			source:   source,
			logger:   logger,
		}
		err := m.runAttempt(services.WithAttempt(runCtx, attempt), run)
		if err == nil {
			m.recordLastJob(jobCtx, job.ID)
			return nil
		}
		err = attemptError(ctx, runCtx, err)
		attemptLogger := logging.WithContext(services.WithAttempt(jobCtx, attempt), logger)
		switch {
		case ctx.Err() != nil:
			attemptLogger.Info("attempt interrupted by shutdown; job will be reclaimed",
				logging.String(logging.FieldEventType, "attempt_interrupted"),
			)
			return ctx.Err()
		case errors.Is(err, errOwnershipLost):
			m.setLastError(err)
			return err
		}

		if services.Retryable(err) && m.clock.Now().Before(run.deadline) {
			ok, retryErr := m.store.BeginRetry(jobCtx, job.ID, worker, services.Kind(err), failureMessage(err))
			if retryErr != nil {
				attemptLogger.Error("failed to record retry", logging.Error(retryErr))
				m.setLastError(retryErr)
				return retryErr
			}
			if ok {
				logging.WarnWithContext(attemptLogger, "attempt failed; retrying", "attempt_retry",
					logging.String(logging.FieldErrorKind, services.Kind(err)),
					logging.Error(err),
					logging.String(logging.FieldImpact, "job continues with a fresh attempt"),
				)
				attempt++
				cfg = m.config()
				continue
			}
		}
		m.fail(services.WithAttempt(jobCtx, attempt), job, err, logger)
		m.recordLastJob(jobCtx, job.ID)
		return err
	}
}
