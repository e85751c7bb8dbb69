package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockRepository tracks failed sign-in attempts per user identifier.
type LockRepository interface {
	IncrementLockCounter(ctx context.Context, identifier string, window time.Duration) (int, error)
	ResetLockCounter(ctx context.Context, identifier string) error
	LockUser(ctx context.Context, identifier string, duration time.Duration) error
	IsUserLocked(ctx context.Context, identifier string) (bool, error)
}

type RedisLockRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLockRepository(client redis.UniversalClient, prefix string) *RedisLockRepository {
	if prefix == "" {
		prefix = "lock"
	}
	return &RedisLockRepository{client: client, prefix: prefix}
}

func (r *RedisLockRepository) IncrementLockCounter(ctx context.Context, identifier string, window time.Duration) (int, error) {
	key := r.counterKey(identifier)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if window > 0 {
		pipe.Expire(ctx, key, window)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (r *RedisLockRepository) ResetLockCounter(ctx context.Context, identifier string) error {
	return r.client.Del(ctx, r.counterKey(identifier)).Err()
}

func (r *RedisLockRepository) LockUser(ctx context.Context, identifier string, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.lockKey(identifier), "1", duration).Err()
}

func (r *RedisLockRepository) IsUserLocked(ctx context.Context, identifier string) (bool, error) {
	n, err := r.client.Exists(ctx, r.lockKey(identifier)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisLockRepository) counterKey(identifier string) string {
	return fmt.Sprintf("%s:counter:%s", r.prefix, normalizeIdentifier(identifier))
}

func (r *RedisLockRepository) lockKey(identifier string) string {
	return fmt.Sprintf("%s:locked:%s", r.prefix, normalizeIdentifier(identifier))
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

type InMemoryLockRepository struct {
	mu       sync.Mutex
	now      func() time.Time
	counters map[string]lockEntry
	locks    map[string]time.Time
}

type lockEntry struct {
	count     int
	expiresAt time.Time
}

func NewInMemoryLockRepository(now func() time.Time) *InMemoryLockRepository {
	if now == nil {
		now = time.Now
	}
	return &InMemoryLockRepository{
		now:      now,
		counters: make(map[string]lockEntry),
		locks:    make(map[string]time.Time),
	}
}

func (r *InMemoryLockRepository) IncrementLockCounter(_ context.Context, identifier string, window time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalizeIdentifier(identifier)
	entry := r.counterLocked(key)
	entry.count++
	if window > 0 {
		entry.expiresAt = r.now().Add(window)
	}
	r.counters[key] = entry
	return entry.count, nil
}

func (r *InMemoryLockRepository) ResetLockCounter(_ context.Context, identifier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counters, normalizeIdentifier(identifier))
	return nil
}

func (r *InMemoryLockRepository) LockUser(_ context.Context, identifier string, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks[normalizeIdentifier(identifier)] = r.now().Add(duration)
	return nil
}

func (r *InMemoryLockRepository) IsUserLocked(_ context.Context, identifier string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalizeIdentifier(identifier)
	until, ok := r.locks[key]
	if !ok {
		return false, nil
	}
	if !r.now().Before(until) {
		delete(r.locks, key)
		return false, nil
	}
	return true, nil
}

func (r *InMemoryLockRepository) counterLocked(key string) lockEntry {
	entry, ok := r.counters[key]
	if !ok {
		return lockEntry{}
	}
	if !entry.expiresAt.IsZero() && !r.now().Before(entry.expiresAt) {
		delete(r.counters, key)
		return lockEntry{}
	}
	return entry
}
