package repair

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-crm/backend/pkg/apperr"
	"github.com/aura-crm/backend/pkg/redis"
)

// LockKey is the Redis key guarding repair runs across instances.
const LockKey = "lock:association-repair"

// RedisLocker implements Locker with a Redis SET NX lock.
type RedisLocker struct {
	client *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker creates a locker whose lock expires after ttl if never released.
func NewRedisLocker(client *goredis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

// TryLock takes the repair lock or returns ErrAlreadyRunning.
func (l *RedisLocker) TryLock(ctx context.Context) (func(), error) {
	lock, err := redis.Acquire(ctx, l.client, LockKey, l.ttl)
	if errors.Is(err, redis.ErrLockHeld) {
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, apperr.Remote("acquire repair lock", err)
	}
	return func() {
		// release with a fresh context so a cancelled run still frees the lock
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(ctx); err != nil {
			l.logger.Warn("release repair lock", zap.Error(err))
		}
	}, nil
}
