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

// releaseScript deletes the key only while it still carries our token, so an
// expired lock re-acquired by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions tunes RedisLocker.
type RedisOptions struct {
	// Prefix is prepended to every key.
	Prefix string
	// TTL bounds how long a crashed holder can block the key.
	TTL time.Duration
	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration
	// MaxWait bounds the total time spent waiting when ctx has no deadline.
	MaxWait time.Duration
}

// DefaultRedisOptions returns the options used by the API server.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Prefix:        "conference-rooms:lock:",
		TTL:           10 * time.Second,
		RetryInterval: 25 * time.Millisecond,
		MaxWait:       5 * time.Second,
	}
}

// RedisLocker implements Locker with SET NX PX on a shared Redis instance.
type RedisLocker struct {
	client  redis.UniversalClient
	options RedisOptions
	logger  *slog.Logger
}

// NewRedisLocker constructs a RedisLocker. Zero option fields fall back to the defaults.
func NewRedisLocker(client redis.UniversalClient, options RedisOptions, logger *slog.Logger) *RedisLocker {
	defaults := DefaultRedisOptions()
	if options.TTL <= 0 {
		options.TTL = defaults.TTL
	}
	if options.RetryInterval <= 0 {
		options.RetryInterval = defaults.RetryInterval
	}
	if options.MaxWait <= 0 {
		options.MaxWait = defaults.MaxWait
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{client: client, options: options, logger: logger}
}

// Lock retries SET NX until it succeeds, ctx ends or MaxWait elapses.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.options.Prefix + key
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.options.MaxWait)
	defer cancel()

	ticker := time.NewTicker(l.options.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, redisKey, token, l.options.TTL).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return l.unlockFunc(redisKey, token), nil
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlockFunc(redisKey, token string) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("failed to release redis lock", "key", redisKey, "error", err)
			}
		})
	}
}
