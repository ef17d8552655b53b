package distlock

import (
	"context"
	"sync"
	"time"

	"go-workbook-pipeline/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder keeps a key.
const DefaultTTL = 2 * time.Minute

// Guard hands out one RedisLock per key. It satisfies the pipeline's
// submission guard interface.
type Guard struct {
	Client redis.UniversalClient
	TTL    time.Duration
}

// NewGuard creates a guard with DefaultTTL when ttl is zero
func NewGuard(client redis.UniversalClient, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{Client: client, TTL: ttl}
}

// Acquire takes the lock for key and keeps extending it every TTL/3 until
// release is called. The returned release is safe to call more than once and
// runs on a detached context.
func (g *Guard) Acquire(ctx context.Context, key string) (func(), bool, error) {
	ttl := g.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	lock := NewRedisLock(g.Client, key, ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		return nil, false, err
	}

	hbCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		heartbeat(hbCtx, lock, ttl)
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			stop()
			<-done

			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := lock.Release(rctx); err != nil {
				logger.Warn("failed to release submission lock", "key", lock.Key(), "error", err.Error())
			}
		})
	}
	return release, true, nil
}

// heartbeat extends the lock until ctx is done or the lock is lost.
func heartbeat(ctx context.Context, lock *RedisLock, ttl time.Duration) {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Extend(ctx, ttl); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("submission lock lost", "key", lock.Key(), "error", err.Error())
				return
			}
		}
	}
}
