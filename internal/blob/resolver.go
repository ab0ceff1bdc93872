package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"podforge/internal/fileutil"
	"podforge/internal/logging"
	"podforge/internal/textutil"
)

// Options configures a Resolver.
type Options struct {
	// ScratchDir receives downloaded blobs. Workers use one per job.
	ScratchDir string
	// Attempts bounds remote retries; defaults to 3.
	Attempts int
	// BaseDelay is the first backoff interval; it doubles per retry.
	BaseDelay time.Duration
	// ArtifactDir is the local destination for published artifacts when no
	// artifact bucket is configured.
	ArtifactDir    string
	ArtifactBucket string
	ArtifactPrefix string
	// DownloadTimeout bounds each remote transfer. Zero means no per-call limit.
	DownloadTimeout time.Duration
	Logger          *slog.Logger
	// Sleep waits between retries. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Resolver makes blob references readable from local disk and persists
// artifacts. Downloads are cached by content key for the life of the resolver.
type Resolver struct {
	store  ObjectStore
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver builds a Resolver. store may be nil for local-only operation.
func NewResolver(store ObjectStore, opts Options) *Resolver {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Resolver{
		store:  store,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "blob"),
		cache:  make(map[string]string),
	}
}

// ForJob returns a resolver sharing the same store and settings but
// downloading into dir with a fresh cache. A positive downloadTimeout
// replaces the per-transfer limit.
func (r *Resolver) ForJob(dir string, downloadTimeout time.Duration) *Resolver {
	opts := r.opts
	opts.ScratchDir = dir
	if downloadTimeout > 0 {
		opts.DownloadTimeout = downloadTimeout
	}
	return NewResolver(r.store, opts)
}

// Resolve returns a local path for ref. Local files that exist are returned
// unchanged; remote objects are downloaded into the scratch directory.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) Result {
	if err := ref.Validate(); err != nil {
		return Result{Err: &ResolveError{Kind: KindNotFound, Ref: ref, Err: err}}
	}
	if !ref.IsRemote() {
		return r.resolveLocal(ref)
	}
	return r.resolveRemote(ctx, ref)
}

func (r *Resolver) resolveLocal(ref Ref) Result {
	info, err := os.Stat(ref.Path)
	switch {
	case err == nil && info.Mode().IsRegular():
		return Result{Path: ref.Path}
	case err == nil:
		return Result{Err: &ResolveError{Kind: KindNotFound, Ref: ref, Attempts: 1, Err: fmt.Errorf("%s is not a regular file", ref.Path)}}
	case errors.Is(err, fs.ErrNotExist):
		return Result{Err: &ResolveError{Kind: KindNotFound, Ref: ref, Attempts: 1, Err: err}}
	default:
		return Result{Err: &ResolveError{Kind: KindTransient, Ref: ref, Attempts: 1, Err: err}}
	}
}

func (r *Resolver) resolveRemote(ctx context.Context, ref Ref) Result {
	if r.store == nil {
		return Result{Err: &ResolveError{Kind: KindNotFound, Ref: ref, Err: errors.New("remote storage is not configured")}}
	}
	key := ContentKey(ref)

	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		if info, err := os.Stat(cached); err == nil && info.Mode().IsRegular() {
			return Result{Path: cached}
		}
	}

	if err := os.MkdirAll(r.opts.ScratchDir, 0o755); err != nil {
		return Result{Err: &ResolveError{Kind: KindTransient, Ref: ref, Err: fmt.Errorf("ensure scratch dir: %w", err)}}
	}
	dest := filepath.Join(r.opts.ScratchDir, key[:16]+path.Ext(ref.Key))

	attempts, err := r.withRetry(ctx, "download", ref, func(callCtx context.Context) error {
		tmp := dest + ".download"
		_ = os.Remove(tmp)
		if err := r.store.Get(callCtx, ref.Bucket, ref.Key, tmp); err != nil {
			_ = os.Remove(tmp)
			return err
		}
		return os.Rename(tmp, dest)
	})
	if err != nil {
		return Result{Err: classify(ref, attempts, err)}
	}

	r.mu.Lock()
	r.cache[key] = dest
	r.mu.Unlock()
	r.logger.Debug("blob downloaded",
		logging.String("ref", ref.String()),
		logging.String("path", dest),
		logging.Int("attempts", attempts),
	)
	return Result{Path: dest}
}

// ArtifactRef returns the stable location for a job's rendered artifact.
func (r *Resolver) ArtifactRef(episodeID, jobID, ext string) Ref {
	name := textutil.PathSegment(jobID) + ext
	dir := textutil.PathSegment(episodeID)
	if r.store != nil && r.opts.ArtifactBucket != "" {
		key := path.Join(r.opts.ArtifactPrefix, dir, name)
		return ObjectRef(r.opts.ArtifactBucket, key)
	}
	return LocalRef(filepath.Join(r.opts.ArtifactDir, dir, name))
}

// Publish persists the file at localPath to dest and returns its size.
func (r *Resolver) Publish(ctx context.Context, localPath string, dest Ref) (int64, error) {
	if err := dest.Validate(); err != nil {
		return 0, err
	}
	if !dest.IsRemote() {
		return fileutil.PublishFile(localPath, dest.Path)
	}
	if r.store == nil {
		return 0, errors.New("publish: remote storage is not configured")
	}
	contentType := mime.TypeByExtension(path.Ext(dest.Key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var size int64
	attempts, err := r.withRetry(ctx, "upload", dest, func(callCtx context.Context) error {
		info, putErr := r.store.Put(callCtx, dest.Bucket, dest.Key, localPath, contentType)
		size = info.Size
		return putErr
	})
	if err != nil {
		return 0, classify(dest, attempts, err)
	}
	return size, nil
}

// Confirm verifies that ref is readable and non-empty, returning its size.
func (r *Resolver) Confirm(ctx context.Context, ref Ref) (int64, error) {
	if err := ref.Validate(); err != nil {
		return 0, err
	}
	if !ref.IsRemote() {
		file, err := os.Open(ref.Path)
		if err != nil {
			return 0, classify(ref, 1, err)
		}
		defer file.Close()
		info, err := file.Stat()
		if err != nil {
			return 0, classify(ref, 1, err)
		}
		header := make([]byte, 12)
		if _, err := file.Read(header); err != nil {
			return 0, fmt.Errorf("confirm %s: read header: %w", ref, err)
		}
		return info.Size(), nil
	}
	if r.store == nil {
		return 0, errors.New("confirm: remote storage is not configured")
	}
	var info ObjectInfo
	attempts, err := r.withRetry(ctx, "stat", ref, func(callCtx context.Context) error {
		var statErr error
		info, statErr = r.store.Stat(callCtx, ref.Bucket, ref.Key)
		return statErr
	})
	if err != nil {
		return 0, classify(ref, attempts, err)
	}
	if info.Size <= 0 {
		return 0, fmt.Errorf("confirm %s: object is empty", ref)
	}
	return info.Size, nil
}

// Remove deletes ref. Absent blobs are not an error.
func (r *Resolver) Remove(ctx context.Context, ref Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if !ref.IsRemote() {
		if err := os.Remove(ref.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	if r.store == nil {
		return errors.New("remove: remote storage is not configured")
	}
	err := r.store.Remove(ctx, ref.Bucket, ref.Key)
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		return err
	}
	return nil
}

// withRetry runs fn up to Attempts times with doubling backoff. Not-found and
// context errors stop immediately.
func (r *Resolver) withRetry(ctx context.Context, op string, ref Ref, fn func(context.Context) error) (int, error) {
	delay := r.opts.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= r.opts.Attempts; attempt++ {
		callCtx := ctx
		cancel := func() {}
		if r.opts.DownloadTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.opts.DownloadTimeout)
		}
		lastErr = fn(callCtx)
		cancel()
		if lastErr == nil {
			return attempt, nil
		}
		if errors.Is(lastErr, ErrObjectNotFound) || ctx.Err() != nil {
			return attempt, lastErr
		}
		if attempt == r.opts.Attempts {
			return attempt, lastErr
		}
		r.logger.Debug("blob transfer retry",
			logging.String("operation", op),
			logging.String("ref", ref.String()),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(lastErr),
		)
		if err := r.opts.Sleep(ctx, delay); err != nil {
			return attempt, err
		}
		delay *= 2
	}
	return r.opts.Attempts, lastErr
}

func classify(ref Ref, attempts int, err error) *ResolveError {
	var resolveErr *ResolveError
	if errors.As(err, &resolveErr) {
		return resolveErr
	}
	kind := KindTransient
	if errors.Is(err, ErrObjectNotFound) || errors.Is(err, fs.ErrNotExist) {
		kind = KindNotFound
	}
	return &ResolveError{Kind: kind, Ref: ref, Attempts: attempts, Err: err}
}

// ContentKey is the cache key for ref.
func ContentKey(ref Ref) string {
	sum := sha256.Sum256([]byte(ref.String()))
	return hex.EncodeToString(sum[:])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
