package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/board-collector/internal/collector"
)

// DefaultTTL bounds how long a crashed holder can keep a source locked.
const DefaultTTL = 30 * time.Minute

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRegistry implements the lock registry on top of SET NX PX so that
// several collector replicas share one lock per source.
type RedisRegistry struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	ids    collector.IDGenerator
}

var _ collector.LockRegistry = (*RedisRegistry)(nil)

// NewRedisRegistry constructs a registry. Keys are "<prefix>:lock:<name>".
func NewRedisRegistry(client redis.UniversalClient, prefix string, ttl time.Duration, ids collector.IDGenerator) (*RedisRegistry, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "collector"
	}
	return &RedisRegistry{client: client, prefix: prefix, ttl: ttl, ids: ids}, nil
}

// TryAcquire sets the lock key if absent. A held key yields (nil, false, nil).
func (r *RedisRegistry) TryAcquire(ctx context.Context, name string) (collector.Lease, bool, error) {
	token, err := r.ids.NewID()
	if err != nil {
		return nil, false, fmt.Errorf("lock token: %w", err)
	}
	key := r.key(name)
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{client: r.client, key: key, token: token}, true, nil
}

func (r *RedisRegistry) key(name string) string {
	return r.prefix + ":lock:" + name
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Release removes the key if this lease still owns it. An expired lease that
// was taken over by another holder is left alone.
func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
