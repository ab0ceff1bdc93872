package workflow

import (
	"context"
	"log/slog"
	"path/filepath"

	"podforge/internal/config"
	"podforge/internal/logging"
	"podforge/internal/queue"
)

// jobLogger returns a logger that also writes to the job's own log file
// under <log_dir>/jobs. The returned close func is never nil.
func (m *Manager) jobLogger(ctx context.Context, cfg *config.Config, job *queue.Job, worker string) (*slog.Logger, func()) {
	base := m.logger.With(logging.String("worker", worker))
	jobLog, err := logging.OpenJobLog(base, filepath.Join(cfg.Paths.LogDir, "jobs"), job.ID, cfg.Logging.Level)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, base), "job log unavailable", "job_log_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job records only go to the daemon log"),
		)
		return base, func() {}
	}
	return jobLog.Logger, func() { _ = jobLog.Close() }
}

// JobLogPath returns where the job log for jobID is written.
func JobLogPath(cfg *config.Config, jobID string) string {
	return filepath.Join(cfg.Paths.LogDir, "jobs", jobID+".log")
}
