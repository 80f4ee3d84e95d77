package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/clinicbook/clinicbook/internal/platform/keylock"
)

// UserLocker serializes operations on one user's session. The returned
// unlock func must be called exactly once.
type UserLocker interface {
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}

// LocalLocker serializes within one process. It is enough when sessions
// live in memory.
type LocalLocker struct {
	locks *keylock.Map
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: keylock.New()}
}

func (l *LocalLocker) Lock(_ context.Context, userID string) (func(), error) {
	return l.locks.Lock(userID), nil
}

const (
	lockKeyPrefix    = "booking:lock:"
	defaultLockRetry = 25 * time.Millisecond
)

// releaseLease deletes the lease only if the caller still owns it.
var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a per-user lease in Redis, for several instances sharing a
// Redis session store. A lease left by a crashed holder lapses after ttl.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	local  *keylock.Map
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: defaultLockRetry, local: keylock.New()}
}

// Lock polls until the lease is free or ctx ends. Callers in the same
// process queue on a local mutex first.
func (l *RedisLocker) Lock(ctx context.Context, userID string) (func(), error) {
	unlockLocal := l.local.Lock(userID)
	key := lockKeyPrefix + userID
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			unlockLocal()
			return nil, fmt.Errorf("acquire session lock: %w", err)
		}
		if ok {
			break
		}
		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			unlockLocal()
			return nil, fmt.Errorf("acquire session lock: %w", ctx.Err())
		case <-t.C:
		}
	}

	return func() {
		// A fresh context: the request's may already be cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseLease.Run(rctx, l.client, []string{key}, token).Err()
		unlockLocal()
	}, nil
}
