package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "lock:"

// unlockScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by another instance is left alone.
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisOptions struct {
	// TTL bounds how long a crashed holder can keep the lock.
	TTL time.Duration
	// RetryInterval is the polling period while the key is held elsewhere.
	RetryInterval time.Duration
}

// RedisLocker is a single-instance Redis lock built on SET NX PX.
type RedisLocker struct {
	rdb    goredis.UniversalClient
	opts   RedisOptions
	logger zerolog.Logger
}

func NewRedisLocker(rdb goredis.UniversalClient, opts RedisOptions, logger zerolog.Logger) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 25 * time.Millisecond
	}
	return &RedisLocker{rdb: rdb, opts: opts, logger: logger.With().Str("component", "lock").Logger()}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	rkey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.opts.RetryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, rkey, token, l.opts.TTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctxErr)
			}
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		// Release must run even when the request context is already done.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := unlockScript.Run(rctx, l.rdb, []string{rkey}, token).Int()
		switch {
		case err != nil && !errors.Is(err, goredis.Nil):
			l.logger.Error().Err(err).Str("key", key).Msg("release lock")
		case n == 0:
			l.logger.Warn().Str("key", key).Dur("ttl", l.opts.TTL).Msg("lock expired before release")
		}
	}, nil
}
