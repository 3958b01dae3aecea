package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix         = "zahori:lock:case:"
	defaultRetryDelay = 25 * time.Millisecond
	releaseTimeout    = 2 * time.Second
)

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL lapsed never frees someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every instance using the same Redis. The TTL
// bounds how long a crashed holder can block a case.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

type RedisOption func(*Redis)

func WithLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

// WithRetryDelay sets the pause between acquisition attempts.
func WithRetryDelay(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.retry = d
		}
	}
}

func NewRedis(client redis.Cmdable, ttl time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{client: client, ttl: ttl, retry: defaultRetryDelay}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lock retries SET NX until it wins or ctx ends.
func (r *Redis) Lock(ctx context.Context, caseID string) (func(), error) {
	key := keyPrefix + caseID
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("acquire case lock: %w", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", ErrNotAcquired, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done; release regardless.
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			if err := releaseScript.Run(relCtx, r.client, []string{key}, token).Err(); err != nil && r.logger != nil {
				r.logger.WarnContext(ctx, "case lock release failed", "case_id", caseID, "error", err)
			}
		})
	}, nil
}
