package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireLua sets key to ownerID with a TTL only if the key is absent, and
// otherwise returns the current holder so the caller can observe contention.
const acquireLua = `
local ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2])
if ok then
    return {1, ARGV[1]}
end
local holder = redis.call('GET', KEYS[1])
return {0, holder}
`

// renewLua extends the TTL only if the caller still holds the lock
// (fencing) — the same GET-then-compare pattern releaseLua uses.
const renewLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
    return 1
end
return 0
`

// releaseLua deletes the key only if the caller still holds it, returning a
// bool rather than the raw DEL count.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    redis.call('DEL', KEYS[1])
    return 1
end
return 0
`

// RedisManager implements Manager using SETNX-with-TTL and Lua-guarded
// compare-and-set renew/release, the same family of scripts as the
// teacher's cache/redis.LockManager.
type RedisManager struct {
	rdb        *redis.Client
	acquireSc  *redis.Script
	renewSc    *redis.Script
	releaseSc  *redis.Script
}

// NewRedisManager creates a RedisManager backed by rdb.
func NewRedisManager(rdb *redis.Client) *RedisManager {
	return &RedisManager{
		rdb:       rdb,
		acquireSc: redis.NewScript(acquireLua),
		renewSc:   redis.NewScript(renewLua),
		releaseSc: redis.NewScript(releaseLua),
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

func (m *RedisManager) Acquire(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, string, error) {
	res, err := m.acquireSc.Run(ctx, m.rdb, []string{lockKey(key)}, ownerID, ttl.Milliseconds()).Result()
	if err != nil {
		return false, "", fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return false, "", fmt.Errorf("lock: acquire %s: unexpected reply", key)
	}
	acquired := fmt.Sprintf("%v", arr[0]) == "1"
	holder := fmt.Sprintf("%v", arr[1])
	return acquired, holder, nil
}

func (m *RedisManager) Renew(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	res, err := m.renewSc.Run(ctx, m.rdb, []string{lockKey(key)}, ownerID, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("lock: renew %s: %w", key, err)
	}
	return res == 1, nil
}

func (m *RedisManager) Release(ctx context.Context, key, ownerID string) (bool, error) {
	res, err := m.releaseSc.Run(ctx, m.rdb, []string{lockKey(key)}, ownerID).Int()
	if err != nil {
		return false, fmt.Errorf("lock: release %s: %w", key, err)
	}
	return res == 1, nil
}

func (m *RedisManager) ForceRelease(ctx context.Context, key string) error {
	if err := m.rdb.Del(ctx, lockKey(key)).Err(); err != nil {
		return fmt.Errorf("lock: force release %s: %w", key, err)
	}
	return nil
}

var _ Manager = (*RedisManager)(nil)
