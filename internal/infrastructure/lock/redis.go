package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
)

// RedisConfig holds settings for the distributed locker
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int

	// TTL bounds how long a crashed holder can block an expense
	TTL time.Duration

	// RetryInterval is the pause between attempts while the key is held elsewhere
	RetryInterval time.Duration

	KeyPrefix string
}

// RedisLocker serializes work across server instances with redislock
type RedisLocker struct {
	client *redis.Client
	locker *redislock.Client
	cfg    RedisConfig
	logger *zap.Logger
}

// NewRedisLocker connects to Redis and verifies the connection
func NewRedisLocker(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisLocker, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 50 * time.Millisecond
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Connected to redis for expense locks", zap.String("addr", cfg.Addr))

	return &RedisLocker{
		client: client,
		locker: redislock.New(client),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Lock retries until the key is obtained or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.cfg.KeyPrefix + key

	lk, err := l.locker.Obtain(ctx, fullKey, l.cfg.TTL, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.cfg.RetryInterval),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("lock %s not obtained: %w", fullKey, err)
	}
	if err != nil {
		l.logger.Error("Failed to obtain lock", zap.String("key", fullKey), zap.Error(err))
		return nil, fmt.Errorf("failed to obtain lock %s: %w", fullKey, err)
	}

	return func() {
		// Release on a fresh context: the caller's may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("Failed to release lock", zap.String("key", fullKey), zap.Error(err))
		}
	}, nil
}

// Ping checks the Redis connection
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

var _ port.Locker = (*RedisLocker)(nil)
