package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MarkerStore is the injectable key/expiry bookkeeping behind the session
// layer: redirect accounting and login-attempt throttling. Process-local
// memory serves a single instance; the redis implementation serves a
// horizontally scaled deployment.
type MarkerStore interface {
	Set(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// Incr bumps a counter, starting its TTL window on first increment.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

type MemoryMarkerStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryMarkerStore) Set(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{count: 1, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryMarkerStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}

func (s *MemoryMarkerStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryMarkerStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = memoryEntry{count: 0, expiresAt: now.Add(ttl)}
	}
	entry.count++
	s.entries[key] = entry
	return entry.count, nil
}

// Sweep drops expired entries; called periodically by the job scheduler.
func (s *MemoryMarkerStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// RedisMarkerStore keys live under a fixed prefix so markers are easy to
// inspect alongside other portal keys.
type RedisMarkerStore struct {
	client *redis.Client
	prefix string
}

func NewRedisMarkerStore(client *redis.Client) *RedisMarkerStore {
	return &RedisMarkerStore{client: client, prefix: "portal:marker:"}
}

func (s *RedisMarkerStore) Set(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, "1", ttl).Err()
}

func (s *RedisMarkerStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisMarkerStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *RedisMarkerStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, s.prefix+key)
	pipe.ExpireNX(ctx, s.prefix+key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
