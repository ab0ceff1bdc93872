package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"podforge/internal/logging"
)

// Options controls a scratch sweep.
type Options struct {
	// MaxAge removes job directories untouched for longer than this. Zero
	// disables age-based removal.
	MaxAge time.Duration
	// Active lists job IDs whose directories are always kept.
	Active map[string]struct{}
	// RemoveOrphans removes every directory not listed in Active,
	// regardless of age. The daemon sets it once at startup, when no job
	// can legitimately be mid-render.
	RemoveOrphans bool
}

// Result contains the outcome of a sweep. Each error names the directory it
// concerns.
type Result struct {
	Removed []string
	Errors  []error
}

// DirInfo contains metadata about a job scratch directory.
type DirInfo struct {
	JobID   string
	Path    string
	ModTime time.Time
	Size    int64
}

// scan lists the job directories directly below scratchDir. Loose files are
// ignored, as is a scratch dir that does not exist yet. Sizes are only
// computed when sized is set, since that walks every file.
func scan(scratchDir string, sized bool) ([]DirInfo, []error) {
	scratchDir = strings.TrimSpace(scratchDir)
	if scratchDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(scratchDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, []error{err}
	}
	var (
		dirs []DirInfo
		errs []error
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(scratchDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		dir := DirInfo{JobID: entry.Name(), Path: path, ModTime: info.ModTime()}
		if sized {
			dir.Size = dirSize(path)
		}
		dirs = append(dirs, dir)
	}
	return dirs, errs
}

// Sweep removes stale and orphaned job directories below scratchDir.
func Sweep(ctx context.Context, scratchDir string, opts Options, logger *slog.Logger) Result {
	logger = logging.NewComponentLogger(logger, "staging")
	dirs, errs := scan(scratchDir, false)
	result := Result{Errors: errs}
	cutoff := time.Now().Add(-opts.MaxAge)

	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		if _, active := opts.Active[dir.JobID]; active {
			continue
		}
		var reason string
		switch {
		case opts.RemoveOrphans:
			reason = "orphaned"
		case opts.MaxAge > 0 && dir.ModTime.Before(cutoff):
			reason = "stale"
		default:
			continue
		}

		if err := os.RemoveAll(dir.Path); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", dir.Path, err))
			logging.WarnWithContext(logger, "failed to remove scratch directory", "scratch_cleanup_failed",
				logging.String("path", dir.Path),
				logging.String("reason", reason),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check scratch_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dir.Path)
		logger.Info("removed scratch directory",
			logging.String("path", dir.Path),
			logging.String("reason", reason),
			logging.Duration("age", time.Since(dir.ModTime).Round(time.Second)),
			logging.String(logging.FieldEventType, "scratch_cleanup"),
		)
	}
	return result
}

// ListDirectories returns every job directory below scratchDir with its
// on-disk size. Entries that cannot be stat'ed are skipped.
func ListDirectories(scratchDir string) ([]DirInfo, error) {
	dirs, errs := scan(scratchDir, true)
	if len(dirs) == 0 && len(errs) > 0 {
		return nil, errs[0]
	}
	return dirs, nil
}

// Usage sums the job directory count and bytes held below scratchDir.
func Usage(scratchDir string) (int, int64, error) {
	dirs, err := ListDirectories(scratchDir)
	if err != nil {
		return 0, 0, err
	}
	var total int64
	for _, d := range dirs {
		total += d.Size
	}
	return len(dirs), total, nil
}

// dirSize is best effort; unreadable entries are skipped.
func dirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
