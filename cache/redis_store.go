package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is an optional Cache backend for deployments running more than
// one orchestrator process against the same agent pool, so a warm cache
// entry computed by one process is visible to the others. It satisfies the
// same Cache interface as MemoryStore; the executor does not know or care
// which backend it is talking to. A key prefix plus a TTL are passed
// straight through to SETEX.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisStoreOption configures a RedisStore at construction.
type RedisStoreOption func(*RedisStore)

// WithPrefix namespaces every key this store touches (default
// "taskgraph:cache:").
func WithPrefix(prefix string) RedisStoreOption {
	return func(r *RedisStore) { r.prefix = prefix }
}

// WithTTL sets the per-entry expiry passed to Redis on every Set.
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(r *RedisStore) { r.ttl = ttl }
}

// NewRedisStore wraps an existing Redis client. The caller owns the
// client's lifecycle (including Close).
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	r := &RedisStore{client: client, prefix: "taskgraph:cache:", ttl: 0}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) namespaced(key string) string {
	return r.prefix + key
}

// Get fetches the value stored under key. A miss (including an expired,
// already-evicted Redis key) returns ok=false rather than an error — the
// Cache interface has no error channel, consistent with the memory-backed
// implementation's "absent means absent" contract.
func (r *RedisStore) Get(key string) (string, bool) {
	val, err := r.client.Get(context.Background(), r.namespaced(key)).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// Set stores value under key with the configured TTL (zero means no
// expiry, matching Redis's semantics for a zero-duration SET).
func (r *RedisStore) Set(key string, value string) {
	r.client.Set(context.Background(), r.namespaced(key), value, r.ttl)
}
