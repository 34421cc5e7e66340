// Package lock provides a short-lived named exclusion primitive on top of
// Redis, used to serialize per-event processing across competing workers.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndDeleteScript releases a lock only if the stored value still
// matches the owner token supplied at acquire time.
const compareAndDeleteScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Service is the distributed lock component.
type Service struct {
	client *redis.Client
}

// NewService wraps an existing Redis client as a lock service.
func NewService(client *redis.Client) *Service {
	return &Service{client: client}
}

// Options configures one Acquire call.
type Options struct {
	// WaitTime bounds how long Acquire retries before giving up.
	WaitTime time.Duration
	// TTL is the lock's expiry, applied atomically with the SET NX.
	TTL time.Duration
}

const acquireRetryInterval = 50 * time.Millisecond

// Acquire attempts SET NX with an expiry of opts.TTL, retrying with a small
// fixed backoff until opts.WaitTime elapses. Returns false, nil (not an
// error) when the lock could not be acquired in time. Timing out is not
// itself a failure: it reports the absence of a side effect, not one that
// went wrong.
func (s *Service) Acquire(ctx context.Context, key, owner string, opts Options) (bool, error) {
	deadline := time.Now().Add(opts.WaitTime)
	for {
		ok, err := s.client.SetNX(ctx, key, owner, opts.TTL).Result()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(acquireRetryInterval):
		}
	}
}

// Release performs a compare-and-delete: the value stored at key must equal
// owner, else the release is a no-op. Never returns an error for a no-op
// release — the caller has already lost ownership, which is expected when a
// TTL expired mid-task.
func (s *Service) Release(ctx context.Context, key, owner string) error {
	res := s.client.Eval(ctx, compareAndDeleteScript, []string{key}, owner)
	if err := res.Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
