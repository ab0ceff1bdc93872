package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"podforge/internal/config"
	"podforge/internal/deps"
	"podforge/internal/queue"
	"podforge/internal/segments"
	"podforge/internal/services/synthesis"
)

const remoteCheckTimeout = 5 * time.Second

// BucketPinger is satisfied by blob.MinioStore.
type BucketPinger interface {
	Ping(ctx context.Context, bucket string) error
}

// Pinger is satisfied by joblock.RedisLocker.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker is satisfied by synthesis.Client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Diagnoser is satisfied by queue.Store.
type Diagnoser interface {
	Diagnose(ctx context.Context) (queue.Diagnosis, error)
}

// CheckJobDatabase reports schema drift, missing tables, or a failed
// integrity check in the job database.
func CheckJobDatabase(ctx context.Context, store Diagnoser) Result {
	const name = "Job database"
	diag, err := store.Diagnose(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	switch {
	case len(diag.MissingTables) > 0:
		return Result{Name: name, Detail: fmt.Sprintf("%s (missing tables: %v)", diag.Path, diag.MissingTables)}
	case diag.Integrity != "ok":
		return Result{Name: name, Detail: fmt.Sprintf("%s (integrity_check: %s)", diag.Path, diag.Integrity)}
	case !diag.Healthy():
		return Result{Name: name, Detail: fmt.Sprintf("%s (schema version %d)", diag.Path, diag.SchemaVersion)}
	}
	total := 0
	for _, n := range diag.Jobs {
		total += n
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d job(s), schema v%d)", diag.Path, total, diag.SchemaVersion)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minBytes available to unprivileged users.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s (%s free)", path, formatBytes(free))
	if free < minBytes {
		return Result{Name: name, Detail: detail + fmt.Sprintf(", need %s", formatBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckTemplates verifies that the template library parses cleanly.
func CheckTemplates(dir string) Result {
	const name = "Templates"
	if dir == "" {
		return Result{Name: name, Detail: "templates_dir not configured"}
	}
	templates, errs := segments.NewLibrary(dir).List()
	if len(errs) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%d invalid (first: %v)", len(errs), errs[0])}
	}
	if len(templates) == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (no templates found)", dir)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d template(s) in %s", len(templates), dir)}
}

// CheckObjectStore verifies the artifact bucket exists and is reachable.
func CheckObjectStore(ctx context.Context, store BucketPinger, bucket string) Result {
	const name = "Object store"
	checkCtx, cancel := context.WithTimeout(ctx, remoteCheckTimeout)
	defer cancel()
	if err := store.Ping(checkCtx, bucket); err != nil {
		return Result{Name: name, Detail: summarizeRemoteError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("bucket %q reachable", bucket)}
}

// CheckRedis verifies the lock backend answers.
func CheckRedis(ctx context.Context, client Pinger) Result {
	const name = "Redis"
	checkCtx, cancel := context.WithTimeout(ctx, remoteCheckTimeout)
	defer cancel()
	if err := client.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeRemoteError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckSynthesis verifies the speech synthesis service is reachable and
// accepts the configured key.
func CheckSynthesis(ctx context.Context, client HealthChecker) Result {
	const name = "Synthesis"
	checkCtx, cancel := context.WithTimeout(ctx, remoteCheckTimeout)
	defer cancel()
	err := client.HealthCheck(checkCtx)
	if err == nil {
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	}
	var statusErr *synthesis.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 401, 403:
			return Result{Name: name, Detail: "auth failed (invalid api key)"}
		default:
			return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", statusErr.StatusCode)}
		}
	}
	return Result{Name: name, Detail: summarizeRemoteError(err)}
}

// CheckSystemDeps evaluates the external binaries required by the configured
// output format. The daemon status and the CLI share this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.MediaRequirements(cfg.FFmpegBinary(), cfg.FFprobeBinary(), cfg.Render.OutputFormat))
}

func summarizeRemoteError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Sprintf("unreachable (%v)", opErr.Err)
	}
	return err.Error()
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
