package ttlstore

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a time-boxed key-value store. It backs WebAuthn challenges,
// pm_tokens, step-up session records, and agent tokens — anything that
// must be readable for a bounded window and then disappear on its own.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

type memoryValue struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store, the default for single-replica
// deployments and for tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]memoryValue
}

// NewMemoryStore creates an empty in-process TTL store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memoryValue)}
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = memoryValue{data: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok || time.Now().After(v.expiresAt) {
		return nil, false, nil
	}
	return v.data, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// RedisStore implements Store over a Redis client, for multi-replica
// deployments where challenges/tokens issued by one instance must be
// readable by another.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed TTL store under the given key
// prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
