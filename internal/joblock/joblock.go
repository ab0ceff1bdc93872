package joblock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"podforge/internal/config"
)

// ErrLockLost is returned by Refresh or Release when the lock is no longer
// held by its owner, for example after a Redis TTL expired.
var ErrLockLost = errors.New("job lock lost")

// Lock is a held advisory lock.
type Lock interface {
	// Refresh extends the lock lease. File locks never expire.
	Refresh(ctx context.Context) error
	// Release gives the lock up. Releasing twice is a no-op.
	Release(ctx context.Context) error
}

// Locker hands out job locks.
type Locker interface {
	// TryLock attempts to take the lock for jobID without waiting. It reports
	// false when another holder has it.
	TryLock(ctx context.Context, jobID string) (Lock, bool, error)
	Close() error
}

// New builds the locker selected by cfg.Locking.Backend.
func New(cfg *config.Config, logger *slog.Logger) (Locker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Locking.Backend)) {
	case "", "file":
		return NewFileLocker(cfg.Paths.LockDir)
	case "redis":
		return NewRedisLocker(RedisOptions{
			Addr:     cfg.Locking.RedisAddr,
			Password: cfg.Locking.RedisPassword,
			DB:       cfg.Locking.RedisDB,
			TTL:      time.Duration(cfg.Locking.TTLSeconds) * time.Second,
			Logger:   logger,
		})
	default:
		return nil, fmt.Errorf("joblock: unknown backend %q", cfg.Locking.Backend)
	}
}

func validateJobID(jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return errors.New("joblock: job id is required")
	}
	if strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return fmt.Errorf("joblock: invalid job id %q", jobID)
	}
	return nil
}
