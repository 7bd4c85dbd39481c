package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fd1az/flashloan-arb/internal/apperror"
	"github.com/fd1az/flashloan-arb/internal/logger"
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds pair locks in Redis so several processes can share them.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	logger logger.LoggerInterface
}

// NewRedisLocker creates a RedisLocker. prefix namespaces the keys.
func NewRedisLocker(rdb *redis.Client, prefix string, log logger.LoggerInterface) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefix, logger: log}
}

// Acquire sets key with SET NX PX. Release is best effort; the TTL bounds a
// lost release.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	full := l.prefix + key
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, apperror.New(apperror.CodeStorageError,
			apperror.WithCause(err),
			apperror.WithContext("lock "+full))
	}
	if !ok {
		return nil, heldError(key)
	}

	return func() {
		// The caller's context may already be cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil {
			l.logger.Warn(rctx, "pair lock release failed", "key", full, "error", err)
		}
	}, nil
}
