// Package lock serializes transactional operations per signing account
// across processes using Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another holder owns the key.
var ErrHeld = errors.New("lock already held")

const keyPrefix = "compound-monitor:signer:"

// Only the owner's token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker hands out expiring exclusive locks backed by Redis.
type Locker struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New creates a Locker backed by Redis.
func New(redisURL, password string, logger *slog.Logger) (*Locker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Locker{rdb: rdb, logger: logger}, nil
}

// Close shuts down the Redis connection.
func (l *Locker) Close() error {
	return l.rdb.Close()
}

// Acquire takes the lock for key until release is called or ttl passes.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, key)
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{keyPrefix + key}, token).Err(); err != nil {
			l.logger.Warn("failed to release signer lock, it will expire on its own", "key", key, "ttl", ttl.String(), "error", err)
		}
	}
	return release, nil
}
