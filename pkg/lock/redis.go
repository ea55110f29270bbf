package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still holds the caller's
// token. A plain DEL here could release a lease acquired by a later
// holder after this one's TTL expired.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker implements Locker on a shared redis instance, making the
// lease visible across process instances.
type RedisLocker struct {
	client  *redis.Client
	release *redis.Script
}

// NewRedisLocker creates a locker backed by the redis server at addr.
func NewRedisLocker(addr string) *RedisLocker {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	return &RedisLocker{
		client:  client,
		release: redis.NewScript(releaseScript),
	}
}

// Lock acquires the key with SET NX and the given TTL. It returns false
// without error when another holder owns the key.
func (r *RedisLocker) Lock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, token, ttl).Result()
}

// Unlock releases the key when the stored token matches.
func (r *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	return r.release.Run(ctx, r.client, []string{key}, token).Err()
}

// Close releases the underlying redis connection.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}
