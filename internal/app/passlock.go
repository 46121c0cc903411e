/**
 * @description
 * Cross-instance lock around the reveal pass.
 *
 * @notes
 * - The lock only saves work. The fund claim in the database is what guarantees a
 *   fund is revealed once, so a lock backend error lets the pass run anyway.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PassLock serializes reveal passes across instances.
type PassLock interface {
	// TryAcquire returns a release func when the lock was taken, or ok=false when
	// another holder has it.
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// NoopPassLock always grants the lock.
type NoopPassLock struct{}

func (NoopPassLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	return func() {}, true, nil
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisPassLock is a SET NX PX lock with token-checked release.
type RedisPassLock struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisPassLock creates a lock stored at prefix + ":reveal-pass". The ttl should
// cover a whole pass, see config.Config.RevealPassBudget.
func NewRedisPassLock(client redis.Cmdable, prefix string, ttl time.Duration, logger *slog.Logger) *RedisPassLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisPassLock{client: client, key: prefix + ":reveal-pass", ttl: ttl, logger: logger}
}

func (l *RedisPassLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			// The key still expires on its ttl; until then other instances skip their pass.
			l.logger.Warn("failed to release reveal pass lock", "key", l.key, "ttl", l.ttl, "error", err)
		}
	}
	return release, true, nil
}
