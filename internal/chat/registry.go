package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Registry remembers the last rendered message per conversation
type Registry interface {
	Get(ctx context.Context, key Key) (Handle, bool, error)
	Put(ctx context.Context, key Key, h Handle) error
	Forget(ctx context.Context, key Key) error
}

// MemoryRegistry keeps handles in process memory
type MemoryRegistry struct {
	mu      sync.Mutex
	handles map[Key]Handle
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{handles: make(map[Key]Handle)}
}

func (r *MemoryRegistry) Get(ctx context.Context, key Key) (Handle, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key]
	return h, ok, nil
}

func (r *MemoryRegistry) Put(ctx context.Context, key Key, h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[key] = h
	return nil
}

func (r *MemoryRegistry) Forget(ctx context.Context, key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, key)
	return nil
}

// RedisRegistry shares handles between replicas. Entries expire once the
// message can no longer be edited.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: ttl, prefix: "worklog:render:"}
}

func (r *RedisRegistry) key(k Key) string {
	return r.prefix + k.String()
}

func (r *RedisRegistry) Get(ctx context.Context, key Key) (Handle, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Handle{}, false, nil
	}
	if err != nil {
		return Handle{}, false, err
	}
	var h Handle
	if err := json.Unmarshal(data, &h); err != nil {
		return Handle{}, false, fmt.Errorf("corrupt render handle for %s: %w", key, err)
	}
	return h, true, nil
}

func (r *RedisRegistry) Put(ctx context.Context, key Key, h Handle) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(key), data, r.ttl).Err()
}

func (r *RedisRegistry) Forget(ctx context.Context, key Key) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
