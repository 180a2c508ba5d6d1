// Package lock serializes pipeline runs across processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultKey = "jobhound:run"
	DefaultTTL = 30 * time.Minute
)

var (
	// ErrLocked is returned when another run holds the lock.
	ErrLocked = errors.New("another run is in progress")
	// ErrNotHeld is returned on release when the lock expired or was taken over.
	ErrNotHeld = errors.New("lock is no longer held")
)

// Release gives up a held lock.
type Release func(ctx context.Context) error

type Locker interface {
	Acquire(ctx context.Context) (Release, error)
}

// Noop always succeeds. It is used when no lock backend is configured.
type Noop struct{}

func (Noop) Acquire(context.Context) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// Redis is a single-key lock using SET NX PX.
type Redis struct {
	client redisClient
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

func NewRedis(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *Redis {
	return newRedis(client, key, ttl, logger)
}

func newRedis(client redisClient, key string, ttl time.Duration, logger *zap.Logger) *Redis {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, key: key, ttl: ttl, logger: logger}
}

func (r *Redis) Acquire(ctx context.Context) (Release, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", r.key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	r.logger.Debug("lock acquired", zap.String("key", r.key), zap.Duration("ttl", r.ttl))

	return func(ctx context.Context) error {
		n, err := r.client.Eval(ctx, releaseScript, []string{r.key}, token).Int64()
		if err != nil {
			return fmt.Errorf("releasing lock %s: %w", r.key, err)
		}
		if n == 0 {
			return ErrNotHeld
		}
		r.logger.Debug("lock released", zap.String("key", r.key))
		return nil
	}, nil
}
