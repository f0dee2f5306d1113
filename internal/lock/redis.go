package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyFormat = "lock:game:room:%d"

// releaseScript deletes the lock only if it still holds our token, so an
// expired lease taken over by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a lease-based distributed lock on a shared Redis server.
type RedisLocker struct {
	client *redis.Client
	wait   time.Duration
	lease  time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, wait: DefaultWait, lease: DefaultLease}
}

func (l *RedisLocker) WithLock(ctx context.Context, roomID int64, fn func() error) error {
	key := fmt.Sprintf(lockKeyFormat, roomID)
	token := uuid.NewString()

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	defer func() {
		// Best effort: the lease expires on its own if the release fails.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}()

	return fn()
}
