// Package lockcache provides the advisory per-seat locks kept in Redis.
// They only narrow the window in which two requests race for the same
// seat; the conditional UPDATE in the seat store decides the outcome.
package lockcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker acquires and releases advisory seat locks.  Acquire returns
// (false, nil) when another owner holds the key and a non-nil error only
// when the cache itself failed.
type Locker interface {
	Acquire(ctx context.Context, showtimeID, seatID, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, showtimeID, seatID, owner string) error
}

// releaseScript deletes the key only when it still carries our owner, so
// an expired lock taken over by someone else is left alone.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// RedisLocker implements Locker with SET NX EX.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker returns a locker that namespaces keys under prefix.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "lock"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

// Key returns the cache key for one seat of one showtime.
func (l *RedisLocker) Key(showtimeID, seatID string) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, showtimeID, seatID)
}

func (l *RedisLocker) Acquire(ctx context.Context, showtimeID, seatID, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.Key(showtimeID, seatID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.Key(showtimeID, seatID), err)
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, showtimeID, seatID, owner string) error {
	key := l.Key(showtimeID, seatID)
	if err := l.client.Eval(ctx, releaseScript, []string{key}, owner).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// Noop is used when Redis is not configured.  Every acquisition succeeds.
type Noop struct{}

func (Noop) Acquire(context.Context, string, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (Noop) Release(context.Context, string, string, string) error { return nil }

// New picks the Redis locker when a client is available and Noop
// otherwise.
func New(client *redis.Client, prefix string) Locker {
	if client == nil {
		return Noop{}
	}
	return NewRedisLocker(client, prefix)
}
