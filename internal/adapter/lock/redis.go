package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/ports"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock that was re-acquired by someone else is never released by us.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLock implements ports.NamedLock on top of Redis SET NX PX. Acquisition
// polls until the lock is free or the acquire timeout elapses.
type RedisLock struct {
	client       *redis.Client
	log          *zap.Logger
	ttl          time.Duration
	pollInterval time.Duration
	timeout      time.Duration
}

func NewRedisLock(url string, log *zap.Logger) (*RedisLock, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLock{
		client:       client,
		log:          log,
		ttl:          30 * time.Second,
		pollInterval: time.Second,
		timeout:      10 * time.Second,
	}, nil
}

func (l *RedisLock) Acquire(ctx context.Context, name string) (ports.Unlocker, error) {
	key := "lock:" + name
	token := uuid.NewString()
	deadline := time.Now().Add(l.timeout)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
		}
		if ok {
			l.log.Debug("lock acquired", zap.String("name", name))
			return &redisUnlocker{client: l.client, key: key, token: token}, nil
		}

		if time.Now().After(deadline) {
			l.log.Warn("lock acquisition timed out", zap.String("name", name))
			return nil, ports.ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

func (l *RedisLock) Close() error {
	return l.client.Close()
}

type redisUnlocker struct {
	client *redis.Client
	key    string
	token  string
}

func (u *redisUnlocker) Unlock(ctx context.Context) error {
	return u.client.Eval(ctx, releaseScript, []string{u.key}, u.token).Err()
}
