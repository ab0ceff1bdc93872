package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// JobLog is a per-job JSON log file that receives a copy of every record the
// worker emits while processing the job.
type JobLog struct {
	Path   string
	Logger *slog.Logger
	file   *os.File
}

// OpenJobLog tees base into <dir>/<jobID>.log. The file is appended to, so
// retried attempts accumulate in one place.
func OpenJobLog(base *slog.Logger, dir, jobID string, level string) (*JobLog, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("job log: job id is required")
	}
	if strings.ContainsAny(jobID, `/\`) {
		return nil, fmt.Errorf("job log: invalid job id %q", jobID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure job log directory: %w", err)
	}
	path := filepath.Join(dir, jobID+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open job log %s: %w", path, err)
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(level))
	logger := TeeLogger(base, newJSONHandler(file, levelVar, false))
	return &JobLog{Path: path, Logger: logger, file: file}, nil
}

// Close flushes and closes the job log file.
func (j *JobLog) Close() error {
	if j == nil || j.file == nil {
		return nil
	}
	return j.file.Close()
}

var _ io.Closer = (*JobLog)(nil)
