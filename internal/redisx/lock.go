package redisx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker is a lockx.Locker shared by every API replica. A lock expires after
// TTL even if its holder dies, so TTL must exceed the longest critical section.
type Locker struct {
	RDB   redis.Cmdable
	TTL   time.Duration
	Retry time.Duration
	Log   *zap.Logger
}

func NewLocker(rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *Locker {
	if ttl <= 0 {
		ttl = TTLLock
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Locker{RDB: rdb, TTL: ttl, Retry: 25 * time.Millisecond, Log: log}
}

// Lock spins on SET NX PX until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, name string) (func(), error) {
	key := fmt.Sprintf(KeyLock, name)
	token := uuid.NewString()
	for {
		ok, err := l.RDB.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		t := time.NewTimer(l.Retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// tetap release walau ctx caller sudah cancel
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.RDB, []string{key}, token).Err(); err != nil {
				l.Log.Warn("lock release failed", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}
