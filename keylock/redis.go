package keylock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	DefaultTTL       = 30 * time.Second
	DefaultRetryWait = 25 * time.Millisecond
)

// =============================================================================
// REDIS - Distributed lock for multi-instance deployments
// =============================================================================

// Redis holds locks as SET NX keys carrying a random token. Only the token
// owner can release.
type Redis struct {
	client    redis.UniversalClient
	script    *redis.Script
	prefix    string
	ttl       time.Duration
	retryWait time.Duration
	logger    *zap.Logger
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

func WithRetryWait(d time.Duration) RedisOption {
	return func(r *Redis) { r.retryWait = d }
}

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

func WithLogger(logger *zap.Logger) RedisOption {
	return func(r *Redis) { r.logger = logger }
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:    client,
		script:    redis.NewScript(lockReleaseScript),
		prefix:    "loyalty:lock:",
		ttl:       DefaultTTL,
		retryWait: DefaultRetryWait,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryLock makes a single acquisition attempt and returns the owner token.
func (r *Redis) TryLock(ctx context.Context, key string) (string, bool, error) {
	if r == nil || r.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if r.ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, r.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes the lock if it is still owned by token.
func (r *Redis) Release(ctx context.Context, key, token string) error {
	if r == nil || r.client == nil || key == "" || token == "" {
		return nil
	}
	return r.script.Run(ctx, r.client, []string{r.prefix + key}, token).Err()
}

// Lock polls until the lock is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	if r == nil || r.client == nil {
		return nil, errors.New("lock client not configured")
	}
	if r.retryWait <= 0 {
		return nil, fmt.Errorf("acquire lock %s: retry wait must be positive", key)
	}
	ticker := time.NewTicker(r.retryWait)
	defer ticker.Stop()

	for {
		token, ok, err := r.TryLock(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// Release must run even when the caller's context is already cancelled.
				relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := r.Release(relCtx, key, token); err != nil {
					r.logger.Warn("release lock failed", zap.String("key", key), zap.Error(err))
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
