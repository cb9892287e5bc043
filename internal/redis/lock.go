package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
)

const (
	lockPollInterval = 25 * time.Millisecond

	therapistLockPrefix   = "lock:therapist:"
	appointmentLockPrefix = "lock:appointment:"
)

// Locker serialises a critical section per id. The scheduling service keys
// it by therapist, the payment recorder by appointment.
type Locker interface {
	WithLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisTherapistLocker creates a locker that uses a per therapist Redis key.
// A held key is polled for up to wait before giving up.
func NewRedisTherapistLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisLocker{client: client, prefix: therapistLockPrefix, ttl: ttl, wait: wait}
}

// NewRedisAppointmentLocker locks per appointment, for payment processing.
func NewRedisAppointmentLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisLocker{client: client, prefix: appointmentLockPrefix, ttl: ttl, wait: wait}
}

func therapistLockKey(therapistID uuid.UUID) string {
	return therapistLockPrefix + therapistID.String()
}

func (l *redisLocker) WithLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	key := l.prefix + id.String()
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// release must run even when the caller's context is done
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
