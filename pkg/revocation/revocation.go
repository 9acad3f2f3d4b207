// Package revocation keeps track of access tokens that were logged out
// before their expiry.
package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store records revoked token ids until the token would have expired anyway
type Store interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryStore is a process-local Store. Revocations are not shared between
// server instances, so it is only correct for single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[tokenID] = now.Add(ttl)

	// drop expired entries on write so the map stays bounded by live tokens
	for id, until := range s.entries {
		if !until.After(now) {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !until.After(s.now()) {
		delete(s.entries, tokenID)
		return false, nil
	}
	return true, nil
}

const redisKeyPrefix = "revoked_token:"

// RedisStore shares revocations between instances through redis keys with a TTL
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Store backed by client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// already expired, nothing to remember
		return nil
	}
	return s.client.Set(ctx, redisKeyPrefix+tokenID, 1, ttl).Err()
}

func (s *RedisStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
