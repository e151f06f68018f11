// Package lock provides a redis-backed purge pass lock for replicas that share
// one access log volume.
package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/maniack/logpurge/internal/logging"
)

const DefaultKey = "logpurge:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements purge.Locker with SET NX PX.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

// NewRedisLocker connects to addr. name is appended to the key prefix, usually
// the purged directory, so that unrelated directories do not contend. ttl
// bounds how long a crashed holder blocks the others.
func NewRedisLocker(addr, password, name string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	key := DefaultKey + strings.Trim(name, "/")
	logging.L().WithFields(map[string]any{"impl": "redis", "addr": addr, "key": key}).Info("lock: initializing redis locker")
	cl := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		MaxRetries:      3,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 250 * time.Millisecond,
		DialTimeout:     1 * time.Second,
		ReadTimeout:     1 * time.Second,
		WriteTimeout:    1 * time.Second,
	})
	return &RedisLocker{client: cl, key: key, ttl: ttl}
}

// Key returns the redis key guarding the pass.
func (l *RedisLocker) Key() string { return l.key }

// Acquire takes the lock if nobody holds it. It returns false without error
// when another holder owns it.
func (l *RedisLocker) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		logging.L().WithContext(ctx).WithField("key", l.key).Debug("lock: held elsewhere")
		return false, nil
	}
	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return true, nil
}

// Release drops the lock if this locker still owns it.
func (l *RedisLocker) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()
	if token == "" {
		return errors.New("lock: release without acquire")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
}

// Ping checks connectivity.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLocker) Close() error { return l.client.Close() }
