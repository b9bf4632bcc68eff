package repo

import (
	"PicStore/config"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrLockBusy is returned by RedisLock.Lock when another holder has the key.
var ErrLockBusy = errors.New("lock is busy")

// NewRedisClient connects to Redis and pings it once.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info().Str("addr", rdb.Options().Addr).Msg("redis ready")
	return rdb, nil
}

type RedisLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// NewRedisLock creates a Redis lock helper.
func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		rdb: rdb,
		key: key,
		ttl: ttl,
	}
}

// Lock tries once to acquire the lock.
func (l *RedisLock) Lock(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockBusy
	}
	l.token = token
	return nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock releases the lock if we still own it.
func (l *RedisLock) Unlock(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	_, err := unlockScript.Run(
		ctx,
		l.rdb,
		[]string{l.key},
		l.token,
	).Result()
	l.token = ""
	return err
}

// RedisLocker hands out per-key locks shared by every process using the
// same Redis. Lock polls until the key is free or ctx is done.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	poll   time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl, prefix: "picture:lock:", poll: 50 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock := NewRedisLock(l.rdb, l.prefix+key, l.ttl)
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		err := lock.Lock(ctx)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrLockBusy) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return func() {
		// the request context may already be gone
		if err := lock.Unlock(context.Background()); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("redis unlock failed")
		}
	}, nil
}
