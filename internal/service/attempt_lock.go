package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edusync/proctor/internal/config"
)

// ErrAttemptActive is returned when the user already has a live session
// for the assessment.
var ErrAttemptActive = errors.New("an attempt is already active")

// AttemptLock enforces one active attempt per (assessment, user).
type AttemptLock interface {
	Acquire(ctx context.Context, assessmentID, userID, owner string) error
	Release(ctx context.Context, assessmentID, userID, owner string) error
}

// lockStore is the subset of *redis.Client the lock needs.
type lockStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Deletes the key only while it still holds the caller's owner id, so an
// expired lock re-acquired by a new session is never released by the old one.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisAttemptLock is a SET NX lock with a TTL. The TTL bounds how long a
// crashed process can block a student.
type RedisAttemptLock struct {
	rdb lockStore
	ttl time.Duration
}

func NewRedisAttemptLock(rdb lockStore, ttl time.Duration) *RedisAttemptLock {
	return &RedisAttemptLock{rdb: rdb, ttl: ttl}
}

func (l *RedisAttemptLock) Acquire(ctx context.Context, assessmentID, userID, owner string) error {
	key := config.CacheKey.ActiveAttemptKey(assessmentID, userID)
	ok, err := l.rdb.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire attempt lock: %w", err)
	}
	if !ok {
		return ErrAttemptActive
	}
	return nil
}

func (l *RedisAttemptLock) Release(ctx context.Context, assessmentID, userID, owner string) error {
	key := config.CacheKey.ActiveAttemptKey(assessmentID, userID)
	if err := l.rdb.Eval(ctx, releaseScript, []string{key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release attempt lock: %w", err)
	}
	return nil
}
