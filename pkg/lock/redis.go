package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTTL bounds how long a crashed holder can block other cycles.
const DefaultRedisTTL = 6 * time.Hour

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v and cjson.decode(v)["token"] == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds a lock as a Redis key with an expiry.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisLocker returns a locker on key. A ttl <= 0 uses [DefaultRedisTTL].
func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

// Acquire implements [Locker].
func (l *RedisLocker) Acquire(ctx context.Context) (Release, error) {
	info := newInfo()
	data, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}

	ok, err := l.client.SetNX(ctx, l.key, data, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire redis lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (redis key %s)", ErrLocked, l.key)
	}

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return releaseScript.Run(ctx, l.client, []string{l.key}, info.Token).Err()
	}, nil
}

var _ Locker = (*RedisLocker)(nil)
