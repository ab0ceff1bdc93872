package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"podforge/internal/joblock"
	"podforge/internal/logging"
	"podforge/internal/queue"
)

// errOwnershipLost cancels an attempt whose job row was reclaimed or whose
// advisory lock expired. The job now belongs to someone else, so the worker
// stops without writing a result.
var errOwnershipLost = errors.New("job ownership lost")

// HeartbeatMonitor keeps running jobs alive and reclaims those whose worker
// stopped heartbeating.
type HeartbeatMonitor struct {
	store  *queue.Store
	logger *slog.Logger
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger) *HeartbeatMonitor {
	return &HeartbeatMonitor{store: store, logger: logger}
}

// ReclaimStale requeues or abandons running jobs whose last heartbeat is
// older than timeout.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	requeued, abandoned, err := h.store.ReclaimStale(ctx, time.Now().Add(-timeout))
	if err != nil {
		return err
	}
	if requeued > 0 || abandoned > 0 {
		h.logger.Info("reclaimed stale jobs",
			logging.Int64("requeued", requeued),
			logging.Int64("abandoned", abandoned),
			logging.String(logging.FieldEventType, "heartbeat_reclaim"),
		)
	}
	return nil
}

// StartLoop refreshes the job heartbeat and lock lease every interval until
// ctx ends. It cancels the attempt through cancel only when ownership is
// lost. Cancel requests are left to the stage checkpoints.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, job *queue.Job, worker string, lock joblock.Lock, interval time.Duration, cancel context.CancelCauseFunc) {
	defer wg.Done()
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := h.store.UpdateHeartbeat(ctx, job.ID, worker); err != nil {
			if errors.Is(err, queue.ErrNotRunning) {
				logging.WarnWithContext(logger, "job no longer owned by this worker", "heartbeat_lost",
					logging.String(logging.FieldImpact, "attempt abandoned without writing a result"),
				)
				cancel(errOwnershipLost)
				return
			}
			if ctx.Err() != nil {
				return
			}
			logger.Warn("heartbeat update failed", logging.Error(err))
		}
		if err := lock.Refresh(ctx); err != nil {
			if errors.Is(err, joblock.ErrLockLost) {
				logging.WarnWithContext(logger, "job lock lease lost", "job_lock_lost",
					logging.String(logging.FieldImpact, "attempt abandoned without writing a result"),
				)
				cancel(errOwnershipLost)
				return
			}
			if ctx.Err() != nil {
				return
			}
			logger.Warn("job lock refresh failed", logging.Error(err))
		}
	}
}
