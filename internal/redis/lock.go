package redisclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("slot lock not acquired")

// Locker guards the book and reschedule critical sections per slot.
type Locker interface {
	WithSlotLock(ctx context.Context, slotID int64, fn func(ctx context.Context) error) error
}

// compare-and-delete so an expired lock reacquired by another holder is
// never deleted by the old one
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlotLocker locks each slot with a SetNX key that expires after
// ttl, so a crashed holder cannot wedge a slot forever. The callback runs
// under a deadline of the same ttl.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisSlotLocker{client: client, ttl: ttl}
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, slotID int64, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("slotlock:%d", slotID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer l.release(key, token)

	fnCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(fnCtx)
}

// acquire retries a couple of times with jitter. Two near-simultaneous
// requests for the same slot are common right after seeding, and the
// first holder's critical section is a handful of milliseconds.
func (l *redisSlotLocker) acquire(ctx context.Context, key, token string) error {
	const attempts = 3

	for i := 0; i < attempts; i++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire slot lock: %w", err)
		}
		if ok {
			return nil
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(5+rand.Intn(20)) * time.Millisecond):
		}
	}

	return ErrLockNotAcquired
}

// release runs on a fresh context so a lock held by a timed-out request
// is still freed.
func (l *redisSlotLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// the key expires on its own if this fails
	if _, err := releaseScript.Run(ctx, l.client, []string{key}, token).Result(); err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("release slot lock %s: %v", key, err)
	}
}
