package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock could not be taken within
// the acquisition bound. Safe to retry the whole operation.
var ErrNotAcquired = errors.New("lock: not acquired")

// releaseScript deletes the lock only if we still own it, so an expired
// lock taken over by another holder is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX EX plus a guarded release.
// The key TTL bounds how long a crashed holder can wedge a resource.
type RedisLocker struct {
	rdb            *redis.Client
	TTL            time.Duration
	RetryInterval  time.Duration
	AcquireTimeout time.Duration
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{
		rdb:            rdb,
		TTL:            30 * time.Second,
		RetryInterval:  75 * time.Millisecond,
		AcquireTimeout: 30 * time.Second,
	}
}

func (l *RedisLocker) BlockingRun(ctx context.Context, key string, fn func() error) error {
	token := uuid.NewString()
	acquireCtx, cancel := context.WithTimeout(ctx, l.AcquireTimeout)
	defer cancel()

	for {
		ok, err := l.rdb.SetNX(acquireCtx, key, token, l.TTL).Result()
		if err != nil {
			return errors.Wrapf(err, "lock: acquire %s", key)
		}
		if ok {
			break
		}
		select {
		case <-acquireCtx.Done():
			return errors.Wrapf(ErrNotAcquired, "key %s", key)
		case <-time.After(l.RetryInterval):
		}
	}

	runErr := fn()

	// Release on a fresh context: the caller's may already be done.
	releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer releaseCancel()
	if _, err := releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Result(); err != nil && runErr == nil {
		return errors.Wrapf(err, "lock: release %s", key)
	}
	return runErr
}
