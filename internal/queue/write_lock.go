package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WriteLock guards enrollment write scopes so only one bulk write or upload
// is in flight per program at a time. Held locks surface as 409 upstream.
// The TTL bounds how long a crashed holder can block a scope.
type WriteLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewWriteLock builds a lock manager with the given hold TTL.
func NewWriteLock(client *redis.Client, ttl time.Duration) *WriteLock {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &WriteLock{client: client, ttl: ttl}
}

func lockKey(scope string) string {
	return "writelock:" + scope
}

// Acquire takes the lock for a scope. Returns false when already held.
func (l *WriteLock) Acquire(ctx context.Context, scope, holder string) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey(scope), holder, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire write lock %s: %w", scope, err)
	}
	return ok, nil
}

// Release frees the lock if this holder still owns it.
func (l *WriteLock) Release(ctx context.Context, scope, holder string) error {
	err := releaseScript.Run(ctx, l.client, []string{lockKey(scope)}, holder).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release write lock %s: %w", scope, err)
	}
	return nil
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
