package joblock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"podforge/internal/logging"
	"podforge/internal/services"
)

const (
	redisKeyPrefix  = "podforge:joblock:"
	defaultRedisTTL = 5 * time.Minute
)

// Owner-checked scripts: a worker whose lease expired must never release or
// extend a lock that another worker has since taken.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisOptions configures a RedisLocker.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL is the lease length; holders refresh well before it elapses.
	TTL time.Duration
	// DialTimeout bounds connection setup; zero uses the client default.
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// RedisLocker implements Locker with SET NX leases.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLocker connects lazily to the Redis server at opts.Addr.
func NewRedisLocker(opts RedisOptions) (*RedisLocker, error) {
	if opts.Addr == "" {
		return nil, services.Wrap(services.ErrConfiguration, "joblock", "connect", "redis address is required", nil)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
		MaxRetries:  1,
	})
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		logger: logging.NewComponentLogger(opts.Logger, "joblock"),
	}, nil
}

// TTL returns the lease length.
func (l *RedisLocker) TTL() time.Duration {
	return l.ttl
}

// Ping checks connectivity.
func (l *RedisLocker) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return services.Wrap(services.ErrTransientIO, "joblock", "ping", "redis unreachable", err)
	}
	return nil
}

// TryLock implements Locker.
func (l *RedisLocker) TryLock(ctx context.Context, jobID string) (Lock, bool, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, false, err
	}
	key := redisKeyPrefix + jobID
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, services.Wrap(services.ErrTransientIO, "joblock", "lock "+jobID, "redis set failed", err)
	}
	if !ok {
		return nil, false, nil
	}
	logging.WithContext(ctx, l.logger).Debug("job lock acquired",
		logging.String("lock_key", key),
		logging.Duration("ttl", l.ttl),
	)
	return &redisLock{locker: l, key: key, token: token}, true, nil
}

// Close implements Locker.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

type redisLock struct {
	locker *RedisLocker

	mu       sync.Mutex
	key      string
	token    string
	released bool
}

func (r *redisLock) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrLockLost
	}
	n, err := refreshScript.Run(ctx, r.locker.client, []string{r.key}, r.token, r.locker.ttl.Milliseconds()).Int64()
	if err != nil {
		return services.Wrap(services.ErrTransientIO, "joblock", "refresh", r.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (r *redisLock) Release(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil
	}
	r.released = true
	n, err := releaseScript.Run(ctx, r.locker.client, []string{r.key}, r.token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return services.Wrap(services.ErrTransientIO, "joblock", "release", r.key, err)
	}
	if n == 0 {
		return fmt.Errorf("release %s: %w", r.key, ErrLockLost)
	}
	return nil
}
