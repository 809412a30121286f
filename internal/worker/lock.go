package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Locker is a cross-process mutual exclusion primitive for sweep ticks.
type Locker interface {
	// TryAcquire takes the lock without waiting. ok is false when another
	// holder has it. release must be called once the work is done.
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token, so a tick
// that outlived its TTL never frees a lock another replica now owns.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a compare-and-delete
// release.
type RedisLocker struct {
	rdb *redis.Client
	key string
	ttl time.Duration
	log zerolog.Logger
}

// NewRedisLocker creates a new RedisLocker.
func NewRedisLocker(rdb *redis.Client, key string, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		rdb: rdb,
		key: key,
		ttl: ttl,
		log: log.With().Str("component", "sweep_lock").Logger(),
	}
}

func (l *RedisLocker) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.log.Warn().Err(err).Str("key", l.key).Msg("Failed to release sweep lock; it will expire")
		}
	}
	return release, true, nil
}
